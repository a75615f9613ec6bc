// Package renderer turns ledger views into markdown.
//
// Each view is a plain struct built from a RecordKeeper by a New* function,
// and rendered by a Render* function through the embedded templates.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed templates/*.md
var templates embed.FS

// RenderAccounts renders the account tree with its balances.
func RenderAccounts(a *Accounts) string {
	partials := map[string]string{
		"accounts_tree":        "accounts_tree.md",
		"accounts_unconverted": "accounts_unconverted.md",
	}
	return renderTemplate("accounts", "accounts.md", partials, a)
}

// RenderHistory renders the balance history of a cash account.
func RenderHistory(h *History) string {
	return renderTemplate("history", "history.md", nil, h)
}

// RenderCategories renders the category forest.
func RenderCategories(c *Categories) string {
	return renderTemplate("categories", "categories.md", nil, c)
}

// RenderTransactions renders a list of transactions, newest first.
func RenderTransactions(t *Transactions) string {
	partials := map[string]string{"transactions_table": "transactions_table.md"}
	return renderTemplate("transactions", "transactions.md", partials, t)
}

// renderTemplate renders a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		// An empty file name results in an empty template.
		if file != "" {
			content, err = fs.ReadFile(templates, "templates/"+file)
			if err != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, err)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}

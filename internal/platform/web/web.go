// Package web renders the server's HTML pages from embedded templates and
// serves their static assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html static/*
var assets embed.FS

// Page names accepted by Render.
const (
	PageLogin             = "login"
	PageAdminDashboard    = "admin_dashboard"
	PageStaffDashboard    = "staff_dashboard"
	PageStaffManagement   = "staff_management"
	PagePatientManagement = "patient_management"
	PageBillingStructure  = "billing_structure"
)

var pages = []string{
	PageLogin,
	PageAdminDashboard,
	PageStaffDashboard,
	PageStaffManagement,
	PagePatientManagement,
	PageBillingStructure,
}

// PageData is what every template receives.
type PageData struct {
	Title    string
	Error    string
	Email    string
	UserID   string
	Role     string
	ReadOnly bool
}

// Renderer implements echo.Renderer. Each page is parsed together with the
// shared layout so every template can define its own "content" block.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.ParseFS(assets, "templates/layout.html", path.Join("templates", name+".html"))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

// Static returns the embedded asset tree rooted at static/.
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

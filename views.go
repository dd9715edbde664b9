package auth

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
)

//go:embed views/*.html
var viewsFS embed.FS

// NewViewEngine returns a django engine over the embedded views with the
// auth template helpers registered.
func NewViewEngine(reload bool) (*django.Engine, error) {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(sub), ".html")
	engine.Reload(reload)

	for name, fn := range TemplateHelpers() {
		engine.AddFunc(name, fn)
	}

	return engine, nil
}

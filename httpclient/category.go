/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vasayxtx/go-glob"
)

// DefaultCategory is a category of requests that are not matched by any rule.
const DefaultCategory = "api"

// CategoryRule maps requests to a category.
// Path is a glob pattern (e.g. "/rest/v1/vehicles*") matched against the URL path.
// Empty Method matches any HTTP method.
type CategoryRule struct {
	Method   string `mapstructure:"method" yaml:"method" json:"method"`
	Path     string `mapstructure:"path" yaml:"path" json:"path"`
	Category string `mapstructure:"category" yaml:"category" json:"category"`
}

// Validate checks that the rule has a path pattern and a category.
func (r CategoryRule) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("path is missing")
	}
	if r.Category == "" {
		return fmt.Errorf("category is missing")
	}
	return nil
}

type compiledCategoryRule struct {
	method    string
	matchPath func(string) bool
	category  string
}

// Categorizer determines the category of the outgoing request.
// Category from the request context wins, then the first matching rule, then the default category.
type Categorizer struct {
	rules           []compiledCategoryRule
	defaultCategory string
}

// NewCategorizer creates a new Categorizer.
// If defaultCategory is empty, DefaultCategory is used.
func NewCategorizer(rules []CategoryRule, defaultCategory string) (*Categorizer, error) {
	if defaultCategory == "" {
		defaultCategory = DefaultCategory
	}
	compiled := make([]compiledCategoryRule, 0, len(rules))
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("category rule #%d: %w", i, err)
		}
		compiled = append(compiled, compiledCategoryRule{
			method:    strings.ToUpper(rule.Method),
			matchPath: glob.Compile(rule.Path),
			category:  rule.Category,
		})
	}
	return &Categorizer{rules: compiled, defaultCategory: defaultCategory}, nil
}

// Categorize returns the category of the request.
func (c *Categorizer) Categorize(r *http.Request) string {
	if category := GetCategoryFromContext(r.Context()); category != "" {
		return category
	}
	for i := range c.rules {
		if c.rules[i].method != "" && c.rules[i].method != r.Method {
			continue
		}
		if c.rules[i].matchPath(r.URL.Path) {
			return c.rules[i].category
		}
	}
	return c.defaultCategory
}

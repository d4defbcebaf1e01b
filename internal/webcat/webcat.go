// Package webcat manages the portal's web categories over its GraphQL
// endpoint: fetching a category by name and replacing its include or
// exclude list, which is how block lists are applied.
package webcat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	graphql "github.com/hasura/go-graphql-client"

	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// MaxEntries is the portal's limit on category list size; longer inputs
// are truncated.
const MaxEntries = 5000

// DefaultCategory is the pre-defined category block lists are written to
// unless another is named.
const DefaultCategory = "Advanced Safe Browsing"

// ListType selects which of a category's lists to replace.
type ListType string

const (
	ListInclude ListType = "include"
	ListExclude ListType = "exclude"
)

// Category mirrors the WebCategory GraphQL fragment. Fields the tooling
// never interprets are kept raw so updates echo them back unchanged.
type Category struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Description          json.RawMessage `json:"description"`
	Usage                json.RawMessage `json:"usage"`
	DynamicURLCategories json.RawMessage `json:"dynamicURLCategories"`
	PreDefinedVariant    json.RawMessage `json:"preDefinedVariant"`
	ExcludeList          []string        `json:"excludeList"`
	IncludeList          []string        `json:"includeList"`
}

const categoryFields = `
  fragment WebCategoryFields on WebCategory {
    id
    name
    description
    usage
    dynamicURLCategories
    preDefinedVariant
    excludeList
    includeList
  }
`

const listCategoriesQuery = categoryFields + `
  query ListWebCategorys($namefilter: String!) {
    listWebCategorys(filter: { name: { eq: $namefilter } }) {
      items {
        ...WebCategoryFields
      }
      total
    }
  }
`

const updateCategoryMutation = categoryFields + `
  mutation UpdateWebCategory($input: UpdateWebCategoryInput!) {
    updateWebCategory(input: $input) {
      ...WebCategoryFields
    }
  }
`

// Service executes web-category operations against a portal host.
type Service struct {
	gql *graphql.Client
}

// NewService builds a Service for the portal's /graphql endpoint. The
// bearer token is the idToken from the REST authentication exchange.
func NewService(host, bearerToken string) *Service {
	httpc := &http.Client{Timeout: 30 * time.Second}
	client := graphql.NewClient(host+"/graphql", httpc).
		WithRequestModifier(func(r *http.Request) {
			r.Header.Set("Authorization", bearerToken)
		})
	return &Service{gql: client}
}

// Fetch returns the category with the given name.
func (s *Service) Fetch(ctx context.Context, name string) (*Category, error) {
	data, err := s.gql.ExecRaw(ctx, listCategoriesQuery, map[string]any{
		"namefilter": name,
	})
	if err != nil {
		return nil, fmt.Errorf("list web categories: %w", err)
	}

	var out struct {
		ListWebCategorys struct {
			Items []Category `json:"items"`
			Total int        `json:"total"`
		} `json:"listWebCategorys"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode web categories: %w", err)
	}
	if len(out.ListWebCategorys.Items) == 0 {
		return nil, fmt.Errorf("category %q not found", name)
	}
	return &out.ListWebCategorys.Items[0], nil
}

// Update writes a changed category back and returns the portal's view of it.
func (s *Service) Update(ctx context.Context, cat *Category) (*Category, error) {
	data, err := s.gql.ExecRaw(ctx, updateCategoryMutation, map[string]any{
		"input": cat,
	})
	if err != nil {
		return nil, fmt.Errorf("update web category %s: %w", cat.Name, err)
	}

	var out struct {
		UpdateWebCategory Category `json:"updateWebCategory"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode updated category: %w", err)
	}
	return &out.UpdateWebCategory, nil
}

// SetListResult reports what a SetList call wrote.
type SetListResult struct {
	// Applied is the list as sent, after the MaxEntries cap.
	Applied []string
	// Verified is true when the portal echoed back exactly the list sent.
	Verified bool
}

// SetList replaces the named category's include or exclude list with the
// given entries, capped at MaxEntries, and verifies the write by
// comparing the portal's echo against what was sent.
func (s *Service) SetList(ctx context.Context, name string, listType ListType, entries []string) (*SetListResult, error) {
	logger := ctxlog.FromContext(ctx)

	if len(entries) > MaxEntries {
		logger.Warn("block list truncated", "limit", MaxEntries, "given", len(entries))
		entries = entries[:MaxEntries]
	}

	cat, err := s.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	switch listType {
	case ListInclude:
		cat.IncludeList = entries
	case ListExclude:
		cat.ExcludeList = entries
	default:
		return nil, fmt.Errorf("invalid list type %q", listType)
	}

	updated, err := s.Update(ctx, cat)
	if err != nil {
		return nil, err
	}

	echoed := updated.IncludeList
	if listType == ListExclude {
		echoed = updated.ExcludeList
	}

	result := &SetListResult{
		Applied:  entries,
		Verified: slices.Equal(echoed, entries),
	}
	logger.Info("web category updated",
		"category", name, "list", string(listType),
		"size", len(entries), "verified", result.Verified)
	return result, nil
}

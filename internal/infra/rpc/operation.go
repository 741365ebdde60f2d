package rpc

import (
	"net/url"

	"github.com/vietddude/ivawatch/internal/infra/rpc/provider"
)

// NewOperation creates a GET operation for the given resource path.
func NewOperation(path string, query url.Values) Operation {
	return provider.Operation{
		Name:  path,
		Query: query,
	}
}

package handlers

import (
	"net/http"

	"mercator-hq/workbench/pkg/uri"
)

// NotFound answers every request with 404, whatever exists on disk.
var NotFound = uri.BlockingHandlerFunc(func(_ *http.Request, resp *uri.Response) {
	resp.SetError(http.StatusNotFound, "Not found")
})

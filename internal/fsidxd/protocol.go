package fsidxd

import (
	"encoding/json"

	"fsindex/internal/model"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type SearchParams struct {
	Keywords      string `json:"keywords"`
	Dir           string `json:"dir,omitempty"`
	Offset        int    `json:"offset,omitempty"`
	MaxCount      int    `json:"max_count,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

type PathParams struct {
	Path string `json:"path"`
}

type StatusResult struct {
	Version   string            `json:"version"`
	Instance  string            `json:"instance"`
	Backend   string            `json:"backend"`
	IndexDir  string            `json:"index_dir"`
	DocCount  int               `json:"doc_count"`
	Pending   int               `json:"pending"`
	Additions int               `json:"additions"`
	Deletions int               `json:"deletions"`
	Roots     []string          `json:"roots,omitempty"`
	Mounts    []model.MountInfo `json:"mounts,omitempty"`
	LastScan  string            `json:"last_scan,omitempty"`
}

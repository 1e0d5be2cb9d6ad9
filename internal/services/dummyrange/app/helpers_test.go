package app

import (
	"encoding/json"
	"net/http"
)

func decodeBody(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

package sandbox

import (
	"encoding/xml"
	"net/http"
)

type apiException struct {
	XMLName   xml.Name `xml:"ApiException"`
	ErrorType string   `xml:"Type"`
	Message   string   `xml:"Message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_ = xml.NewEncoder(w).Encode(apiException{ErrorType: http.StatusText(status), Message: msg})
}

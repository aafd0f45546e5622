package httpserver

import (
	"encoding/xml"
	"fmt"

	"github.com/gin-gonic/gin"
)

// Vendor error codes.
const (
	CodeUnknown           = "0000"
	CodeBadClient         = "0004"
	CodeAccountExists     = "0100"
	CodeAgreementNotFound = "1101"
	causeClientID         = "client_id"
	msgUnknown            = "Unknown error"
	msgBadClient          = "API application invalid or incorrect application credentials"
	msgAccountExists      = "Account ID already exists"
)

type errorsDoc struct {
	XMLName xml.Name  `xml:"errors"`
	Error   errorItem `xml:"error"`
}

type errorItem struct {
	Cause   string `xml:"cause,omitempty"`
	Code    string `xml:"code"`
	Message string `xml:"message"`
}

func agreementNotFound(kind, region, version string) string {
	return fmt.Sprintf("No stored agreement found for this country: %s type: %s and version: %s", region, kind, version)
}

// writeError renders the vendor XML error document.
func writeError(c *gin.Context, status int, cause, code, message string) {
	body, err := xml.Marshal(errorsDoc{Error: errorItem{Cause: cause, Code: code, Message: message}})
	if err != nil {
		c.AbortWithStatus(500)
		return
	}
	c.Data(status, "text/xml", append([]byte(xml.Header), body...))
	c.Abort()
}

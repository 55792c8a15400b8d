package extract

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed contract.schema.json
var contractSchemaJSON string

// printer formats schema violation messages.
var printer = message.NewPrinter(language.English)

var contractSchema = mustCompileSchema(contractSchemaJSON, "contract.schema.json")

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("extract: parse embedded %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("extract: add %s resource: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("extract: compile %s: %v", name, err))
	}
	return s
}

// Violation is one reply-contract breach.
type Violation struct {
	// Location is the JSON pointer of the offending value, "/" for the root.
	Location string
	// Message describes the breach.
	Message string
}

func (v Violation) String() string {
	return v.Location + ": " + v.Message
}

// CheckContract validates a parsed reply against the expected shape: an
// object with exactly the five attribute keys, each a string or null. The
// check is advisory; the record builder tolerates every violation except a
// non-object root.
func CheckContract(v any) []Violation {
	err := contractSchema.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Location: "/", Message: err.Error()}}
	}
	var out []Violation
	collectViolations(ve, &out)
	return out
}

func collectViolations(ve *jsonschema.ValidationError, out *[]Violation) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*out = append(*out, Violation{Location: loc, Message: ve.ErrorKind.LocalizedString(printer)})
		return
	}
	for _, c := range ve.Causes {
		collectViolations(c, out)
	}
}

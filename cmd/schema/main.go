package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/luccadibe/remotejob/internal/config"
)

// prints the JSON schema of the remotejob YAML configuration file
func main() {
	r := &jsonschema.Reflector{FieldNameTag: "yaml"}
	schema := r.Reflect(&config.Config{})
	schema.Title = "remotejob configuration"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// schema prints JSON Schema documents for the wire protocol envelopes, for
// client authors who do not read Go.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"cardroom/internal/codec"
)

var documents = map[string]any{
	"hello-request":  codec.HelloRequest{},
	"hello-response": codec.HelloResponse{},
	"command":        codec.CommandEnvelope{},
	"response":       codec.ResponseEnvelope{},
	"event":          codec.EventEnvelope{},
}

func main() {
	name := flag.String("doc", "", "document to print (default: all, keyed by name)")
	flag.Parse()

	reflector := &jsonschema.Reflector{ExpandedStruct: true}

	if *name != "" {
		v, ok := documents[*name]
		if !ok {
			log.Fatalf("[Schema] Unknown document %q", *name)
		}
		emit(reflector, v)
		return
	}

	out := make(map[string]*jsonschema.Schema, len(documents))
	for key, v := range documents {
		out[key] = reflector.Reflect(v)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("[Schema] Encode failed: %v", err)
	}
}

func emit(r *jsonschema.Reflector, v any) {
	raw, err := json.MarshalIndent(r.Reflect(v), "", "  ")
	if err != nil {
		log.Fatalf("[Schema] Encode failed: %v", err)
	}
	fmt.Println(string(raw))
}

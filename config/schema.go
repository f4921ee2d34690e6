package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Schema is the CUE definition every configuration file must satisfy.
const Schema = `
#Config: {
	name?:       string
	logging?:    #Logging
	telemetry?:  #Telemetry
	container?:  #Container
	checkout?:   #Checkout
	hot_reload?: bool
}

#Logging: {
	level?:  "trace" | "debug" | "info" | "warn" | "error" | ""
	format?: "json" | "text" | ""
	loki?: {
		enabled?: bool
		url?:     string
		labels?: {[string]: string}
	}
}

#Telemetry: {
	enabled?:  bool
	provider?: "prometheus" | "noop" | ""
	listen?:   string
}

#Container: {
	name?:               string
	side_effect_buffer?: int & (>=1 | -1)
	stop_timeout?:       #Duration
	intent_workers?:     int & >=0
}

#Checkout: {
	currency?:            =~"^[A-Z]{3}$"
	processing_delay?:    #Duration
	heartbeat_interval?:  #Duration
	promotions?: [...#Promotion]
	scenario?: [...#Step]
	exit_after_scenario?: bool
}

#Promotion: {
	id:         string & !=""
	expression: string & !=""
}

#Step: {
	action:    "add" | "remove" | "apply_promotions" | "checkout" | "wait"
	sku?:      string
	price?:    =~"^[0-9]+(\\.[0-9]+)?$" | number
	quantity?: int & >=1
	duration?: #Duration
}

#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$" | ""
`

// Validate checks raw YAML against Schema and reports every violation.
func Validate(raw []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(Schema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	data := ctx.Encode(doc)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

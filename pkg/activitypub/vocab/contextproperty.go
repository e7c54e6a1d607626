/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"fmt"
)

// ContextProperty holds one or more contexts.
type ContextProperty struct {
	contexts []Context
}

// NewContextProperty returns a new 'context' property. Nil is returned if no context was provided.
func NewContextProperty(context ...Context) *ContextProperty {
	if len(context) == 0 {
		return nil
	}

	return &ContextProperty{contexts: context}
}

// Contexts returns all of the contexts defined in the property.
func (p *ContextProperty) Contexts() []Context {
	if p == nil {
		return nil
	}

	return p.contexts
}

// Contains returns true if the property contains all of the given contexts.
func (p *ContextProperty) Contains(contexts ...Context) bool {
	if p == nil || len(contexts) == 0 {
		return false
	}

	for _, t := range contexts {
		if !p.contains(t) {
			return false
		}
	}

	return true
}

// ContainsAny returns true if the property contains any of the given contexts.
func (p *ContextProperty) ContainsAny(contexts ...Context) bool {
	if p == nil || len(contexts) == 0 {
		return false
	}

	for _, t := range contexts {
		if p.contains(t) {
			return true
		}
	}

	return false
}

// String returns the string representation of the context property.
func (p *ContextProperty) String() string {
	if p == nil || len(p.contexts) == 0 {
		return ""
	}

	if len(p.contexts) == 1 {
		return string(p.contexts[0])
	}

	return fmt.Sprintf("%s", p.contexts)
}

// MarshalJSON marshals the context property.
func (p *ContextProperty) MarshalJSON() ([]byte, error) {
	if len(p.contexts) == 1 {
		return json.Marshal(p.contexts[0])
	}

	return json.Marshal(p.contexts)
}

// UnmarshalJSON unmarshals the context property.
func (p *ContextProperty) UnmarshalJSON(bytes []byte) error {
	var ctx Context

	err := json.Unmarshal(bytes, &ctx)
	if err == nil {
		p.contexts = []Context{ctx}

		return nil
	}

	var contexts []Context

	if err := json.Unmarshal(bytes, &contexts); err == nil {
		p.contexts = contexts

		return nil
	}

	// A JSON-LD context may also be an object or an array containing
	// objects. Only the string entries are retained.
	var rawArray []interface{}

	if err := json.Unmarshal(bytes, &rawArray); err == nil {
		for _, entry := range rawArray {
			if str, ok := entry.(string); ok {
				p.contexts = append(p.contexts, Context(str))
			}
		}

		return nil
	}

	var rawObject map[string]interface{}

	if err := json.Unmarshal(bytes, &rawObject); err != nil {
		return err
	}

	return nil
}

func (p *ContextProperty) contains(t Context) bool {
	for _, pt := range p.contexts {
		if pt == t {
			return true
		}
	}

	return false
}

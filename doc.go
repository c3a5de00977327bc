/*
Package knot is a two-way binding engine: it keeps named properties ("access points") on two entities in sync through change notifications, optional value transforms and many-to-one aggregation.

The engine knows nothing about the entities themselves. Reading, writing and observing a property is delegated to Providers registered with the engine, so the same binding text can tie in-memory objects, Redis hashes or anything else a provider understands.

# Concept

A binding is written in a compact text format, one clause per binding:

	text > trim : name
	isEnabled : (isLogged & userId > trueWhenNot0) > trueWhenAllTrue

':' separates the left and right access points, '>' chains transforms applied when a side is read, '&' lists the children of a composite access point and the transform after the parentheses aggregates their values. Braces hold an inline transform compiled by an injected Evaluator.

Tying a clause produces a Knot. The right side is the source of truth for the initial value; afterwards each monitored side writes its (transformed) value into the other whenever it changes. Untie releases every subscription.

# Key Features

  - Pluggable Providers: resolution scans providers last-registered-first and degrades to an inert binding when none claims a property.
  - Batch-tolerant Parsing: a malformed clause is reported and dropped without affecting its siblings.
  - Checked Transforms: every referenced transform is resolved before anything is written.
  - Feedback Safety: a knot drops change notifications echoed back while it is already propagating.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/knot"
		"github.com/aretw0/knot/pkg/adapters/memory"
	)

	func main() {
		eng := knot.New()
		eng.Register(memory.NewProvider())

		form := memory.NewEntity("form", nil)
		user := memory.NewEntity("user", map[string]any{"name": " ada "})

		ctx := context.Background()
		knots, err := eng.Bind(ctx, form, user, "text : name > trim")
		if err != nil {
			log.Fatal(err)
		}
		defer eng.UntieAll(ctx, knots...)

		v, _ := form.Get("text")
		fmt.Println(v) // ada
	}
*/
package knot

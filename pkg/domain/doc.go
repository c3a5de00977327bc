/*
Package domain contains the core domain models of the Knot binding engine.

It defines the access point descriptors produced by the DSL parser, the binding
specification that pairs them, the typed errors reported by parsing and tying,
and the lifecycle events surfaced to observers. This package is kept pure and
free of external dependencies like I/O or providers.

# Key Entities

  - AccessPoint: A named property on an entity, optionally piped through transforms,
    or a composite that aggregates several children through one N-to-1 transform.
  - Spec: One DSL clause, a (Left, Right) pair of access points.
  - Direction: Which way a value travelled through a knot.
  - LifecycleHooks: Callbacks fired on tie, untie, value change and error.
*/
package domain

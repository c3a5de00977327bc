/*
Package ports defines the driven ports (interfaces) of the Knot binding engine.

These interfaces decouple the binding engine from concrete entity runtimes, so the
same DSL can bind in-memory objects, Redis hashes or any toolkit that implements a
provider.

# Key Interfaces

  - Provider: Reads and writes a named access point on a target entity.
  - Monitorer: Optional provider capability to observe access point changes.
  - Evaluator: Compiles inline transform snippets found in binding text.
*/
package ports

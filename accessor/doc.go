// Package accessor provides a generic CRUD accessor over Bun-mapped
// entities. A Binding specializes the accessor to a 4-tuple of types (the
// entity plus its create, update and filter payloads); accessors constructed
// from a binding run create, paginated/filtered read, read-by-identifier,
// partial update and delete against any bun.IDB session, in a blocking and
// a future-returning variant.
package accessor

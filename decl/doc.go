// Package decl turns a declaration stream into C types and symbol bindings.
//
// A stream is YAML (or JSON) listing structs, unions, enums, typedefs,
// functions and globals in source order:
//
//	library: libdemo.so
//	declarations:
//	  - kind: struct
//	    name: pair
//	    members:
//	      - {name: a, type: int}
//	      - {name: b, type: int}
//	  - kind: function
//	    name: make_pair
//	    signature:
//	      return: {struct: pair}
//	      params: [{type: int}, {type: int}]
//
// Set.Apply builds the types, lays them out eagerly and rolls back any
// declaration that fails. Set.Bind binds the functions and globals through
// a library.Resolver.
package decl

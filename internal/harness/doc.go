// Package harness runs scripted multi-user sessions against a real
// registry and records what every user saw.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: door_follows_wall
//	description: "A door hosted on a wall moves with it"
//	users: [alice, bob]
//	steps:
//	  - user: alice
//	    method: init_file
//	    args: [mem://house]
//	  - user: alice
//	    method: add_object
//	    args: [$ev1, {kind: wall, entity: {id: $w1, start: {x: 0, y: 0, z: 0}, ...}}]
//	  - user: bob
//	    method: undo_latest
//	    args: []
//	    expect:
//	      error: USER_NOT_FOUND
//	assertions:
//	  - type: property
//	    file: mem://house
//	    object: $d1
//	    prop: position
//	    equals: {x: 2, y: 1, z: 0}
//
// Any string argument of the form $name is replaced by a UUID derived from
// name, so one alias names the same object, event or query everywhere.
// Users are aliased the same way. Copies made during a run receive the
// ids $copy1, $copy2 and so on.
//
// A step without an expect clause must succeed. expect.result is a
// subset match against the JSON form of the result.
//
// # Assertion Types
//
//   - property: an object's property equals a value
//   - object_count: a file holds exactly count objects
//   - depends_on: object subscribes to exactly the listed publishers
//   - delivered: a user received at least count messages of a type
//   - history: a user's undo stack has exactly count events
//   - consistent: no dangling edges and no reference cycles in a file
//
// # Determinism
//
// Runs use one propagation worker and derived ids, so the trace and the
// saved documents are identical across runs and suitable for golden files.
package harness

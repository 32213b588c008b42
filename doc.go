// Package shapely asks a function-calling chat model for values of a declared shape and
// guarantees the answer either validates against that shape or is a correctly invoked
// capability call.
//
// # Overview
//
// A model's text is untrusted. shapely normalizes a shape descriptor (primitive marker,
// object template, Go type, textual DSL or canonical Schema) into a canonical Schema, advertises
// it to the model as a function, validates the returned arguments against the same schema and
// feeds validation failures back into the conversation for self-correction.
//
// Pipeline: descriptor → Normalize → Schema → WrapResponse (object form for the wire) →
// ChatModel → ParseArguments (validate + unwrap) → value.
//
// # Modes
//
//   - Ask: force the synthetic "return" capability and hand back its validated value.
//   - Call: let the model pick a capability, validate its arguments and invoke it once.
//   - Run: let the model call capabilities turn after turn until it returns; a capability may
//     redirect the loop through the Patch of its Outcome.
//
// Ask and Call retry invalid answers with feedback (3 retries by default); Run keeps nudging
// the model on malformed turns, bounded only if WithMaxNudges is set.
//
// # Example
//
//	engine := shapely.NewEngine(model)
//	client := shapely.NewClient(engine)
//	v, err := client.Ask(ctx, "How many legs does a $animal have?", map[string]any{"animal": "duck"}, shapely.PrimNumber)
//	if err != nil { ... }
//	legs := v.(float64)
package shapely

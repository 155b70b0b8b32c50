// Package schema validates and coerces raw tool input against a declared shape.
//
// Invariants:
// - Validation is synchronous and side-effect free.
// - Raw input of any Go shape is normalized through JSON before validation.
// - Absent optional fields with a declared default are filled in.
//
// Usage:
//
//	s := schema.Object(
//		schema.String("email").Format("email"),
//		schema.Integer("age").Min(0).Optional(),
//		schema.Enum("plan", "free", "pro").Default("free"),
//	)
//	parsed, err := s.Validate(map[string]interface{}{"email": "a@b.co"})
package schema

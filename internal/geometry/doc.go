// Package geometry provides the normalized quadrilateral model used by the
// border capture engine.
//
// # Coordinate System
//
// Points are expressed as fractions of the image size: X is the fraction of
// the width and Y the fraction of the height, both in [0,1]. The origin is the
// top-left corner, X increases rightward and Y increases downward, matching the
// pixel convention of the imaging package.
//
// # Corner Order
//
// A Quadrilateral always stores its corners as top-left, top-right,
// bottom-right, bottom-left. In image coordinates (Y down) this is a clockwise
// walk, which gives a positive signed area from the shoelace formula.
//
// # Validation
//
// A quadrilateral is valid when its four points form a simple polygon with the
// expected winding: no coincident corners, no three consecutive corners on a
// line and no crossing edges. Every validation failure wraps ErrInvalidGeometry
// so callers can test with errors.Is.
package geometry

// Package expr implements the small expression language used inside workflow
// conditions, variable assignments and log templates.
//
// The language has four value kinds (Number, Boolean, String, Undefined), no
// user-defined functions, no loops and no composite data. Source text goes
// through three stages:
//
//  1. Lexing: characters to tokens. Single-quoted strings and bare
//     identifiers other than true/false/AND/OR/NOT are rejected here.
//  2. Parsing: tokens to a closed AST (Const, Load, Binary, Unary,
//     Interpolated). Precedence, lowest first: ||, &&, comparison (one
//     level, non-associative), + -, * / %, unary ! - +, primary.
//  3. Evaluation: AST plus a Resolver to a Value.
//
// Variables are written with a sigil: $name or @name.
//
// Double-quoted strings that contain braces are interpolated: "{expr}"
// segments are evaluated and rendered with Value.String. Use {{ and }} for
// literal braces.
//
// All failures are *Error values carrying a Code (LEX_ERROR, PARSE_ERROR or
// EVAL_ERROR). Error() returns only the message, so callers can surface it
// unchanged.
package expr

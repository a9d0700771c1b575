// Package analyzer performs static pre-execution screening of submitted
// Lua snippets. It parses the code into a syntax tree and rejects call
// expressions that match a deny-list of dangerous operations.
//
// This is a syntactic heuristic, not a security boundary: it can be
// bypassed by indirection (string concatenation of an operation name,
// dynamic table lookup). Trusted submitters may override its verdict.
package analyzer

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// Verdict is the outcome of a static analysis pass.
type Verdict int

const (
	VerdictSafe Verdict = iota
	VerdictUnsafe
)

func (v Verdict) String() string {
	switch v {
	case VerdictSafe:
		return "safe"
	case VerdictUnsafe:
		return "unsafe"
	default:
		return "unknown"
	}
}

// Result is derived purely from the submitted code text; identical code
// always yields an identical verdict.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Safe reports whether the code passed screening.
func (r Result) Safe() bool { return r.Verdict == VerdictSafe }

// TreeStats summarizes the parsed syntax tree for the analyze command.
type TreeStats struct {
	Functions int
	Tables    int
	Lines     int
}

// DefaultDenyList returns the fixed set of operation names blocked by
// default: shelling out, spawning subprocesses, dynamic evaluation,
// dynamic import, opening arbitrary files, dynamic compilation, and
// environment/scope introspection. Matching is case-sensitive.
func DefaultDenyList() []string {
	return []string{
		"os.execute",
		"io.popen",
		"load",
		"loadstring",
		"require",
		"dofile",
		"loadfile",
		"io.open",
		"getfenv",
		"setfenv",
	}
}

// Analyzer screens code against a deny-list. The deny-list is data, not
// control flow; callers may supply their own via NewWithDenyList.
type Analyzer struct {
	denied []string
}

// New creates an analyzer with the default deny-list.
func New() *Analyzer {
	return NewWithDenyList(DefaultDenyList())
}

// NewWithDenyList creates an analyzer with a custom deny-list.
func NewWithDenyList(denied []string) *Analyzer {
	return &Analyzer{denied: denied}
}

// Analyze parses code and walks every call expression. A call through a
// qualified access (e.g. os.execute) is unsafe if its rendered target
// contains any deny-listed substring; a call to a bare identifier is
// unsafe only on an exact name match. The first match short-circuits.
// Code that fails to parse is unsafe with the parser's message.
func (a *Analyzer) Analyze(code string) Result {
	chunk, err := parse.Parse(strings.NewReader(code), "<submission>")
	if err != nil {
		return Result{
			Verdict: VerdictUnsafe,
			Reason:  fmt.Sprintf("syntax error: %v", err),
		}
	}

	if name := a.walkStmts(chunk); name != "" {
		return Result{
			Verdict: VerdictUnsafe,
			Reason:  fmt.Sprintf("dangerous operation detected: %s", name),
		}
	}

	return Result{Verdict: VerdictSafe, Reason: "code analysis passed"}
}

// Stats parses code and counts function definitions, table constructors
// and source lines. Returns an error if the code does not parse.
func (a *Analyzer) Stats(code string) (TreeStats, error) {
	chunk, err := parse.Parse(strings.NewReader(code), "<submission>")
	if err != nil {
		return TreeStats{}, fmt.Errorf("parsing code: %w", err)
	}

	stats := TreeStats{Lines: len(strings.Split(code, "\n"))}
	countStmts(chunk, &stats)
	return stats, nil
}

// Compile parses and compiles code into a function prototype runnable by
// the execution engine. Shared here so the engine reuses one parser.
func Compile(code, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(code), name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}

// walkStmts returns the first deny-listed operation name found, or "".
func (a *Analyzer) walkStmts(stmts []ast.Stmt) string {
	for _, st := range stmts {
		if name := a.walkStmt(st); name != "" {
			return name
		}
	}
	return ""
}

func (a *Analyzer) walkStmt(st ast.Stmt) string {
	switch s := st.(type) {
	case *ast.AssignStmt:
		return firstMatch(a.walkExprs(s.Lhs), a.walkExprs(s.Rhs))
	case *ast.LocalAssignStmt:
		return a.walkExprs(s.Exprs)
	case *ast.FuncCallStmt:
		return a.walkExpr(s.Expr)
	case *ast.DoBlockStmt:
		return a.walkStmts(s.Stmts)
	case *ast.WhileStmt:
		return firstMatch(a.walkExpr(s.Condition), a.walkStmts(s.Stmts))
	case *ast.RepeatStmt:
		return firstMatch(a.walkStmts(s.Stmts), a.walkExpr(s.Condition))
	case *ast.IfStmt:
		return firstMatch(
			a.walkExpr(s.Condition),
			a.walkStmts(s.Then),
			a.walkStmts(s.Else),
		)
	case *ast.NumberForStmt:
		return firstMatch(
			a.walkExpr(s.Init),
			a.walkExpr(s.Limit),
			a.walkExprOrNil(s.Step),
			a.walkStmts(s.Stmts),
		)
	case *ast.GenericForStmt:
		return firstMatch(a.walkExprs(s.Exprs), a.walkStmts(s.Stmts))
	case *ast.FuncDefStmt:
		return a.walkExpr(s.Func)
	case *ast.ReturnStmt:
		return a.walkExprs(s.Exprs)
	default:
		return ""
	}
}

func (a *Analyzer) walkExprs(exprs []ast.Expr) string {
	for _, ex := range exprs {
		if name := a.walkExpr(ex); name != "" {
			return name
		}
	}
	return ""
}

func (a *Analyzer) walkExprOrNil(ex ast.Expr) string {
	if ex == nil {
		return ""
	}
	return a.walkExpr(ex)
}

func (a *Analyzer) walkExpr(ex ast.Expr) string {
	switch e := ex.(type) {
	case *ast.FuncCallExpr:
		if name := a.matchCallTarget(e); name != "" {
			return name
		}
		if e.Func != nil {
			if name := a.walkExpr(e.Func); name != "" {
				return name
			}
		}
		if e.Receiver != nil {
			if name := a.walkExpr(e.Receiver); name != "" {
				return name
			}
		}
		return a.walkExprs(e.Args)
	case *ast.AttrGetExpr:
		return firstMatch(a.walkExpr(e.Object), a.walkExpr(e.Key))
	case *ast.TableExpr:
		for _, f := range e.Fields {
			if f.Key != nil {
				if name := a.walkExpr(f.Key); name != "" {
					return name
				}
			}
			if name := a.walkExpr(f.Value); name != "" {
				return name
			}
		}
		return ""
	case *ast.FunctionExpr:
		return a.walkStmts(e.Stmts)
	case *ast.LogicalOpExpr:
		return firstMatch(a.walkExpr(e.Lhs), a.walkExpr(e.Rhs))
	case *ast.RelationalOpExpr:
		return firstMatch(a.walkExpr(e.Lhs), a.walkExpr(e.Rhs))
	case *ast.StringConcatOpExpr:
		return firstMatch(a.walkExpr(e.Lhs), a.walkExpr(e.Rhs))
	case *ast.ArithmeticOpExpr:
		return firstMatch(a.walkExpr(e.Lhs), a.walkExpr(e.Rhs))
	case *ast.UnaryMinusOpExpr:
		return a.walkExpr(e.Expr)
	case *ast.UnaryNotOpExpr:
		return a.walkExpr(e.Expr)
	case *ast.UnaryLenOpExpr:
		return a.walkExpr(e.Expr)
	default:
		return ""
	}
}

// matchCallTarget tests one call expression's target against the
// deny-list. Method calls (obj:m()) are treated as qualified access.
func (a *Analyzer) matchCallTarget(call *ast.FuncCallExpr) string {
	if call.Receiver != nil {
		full := renderExpr(call.Receiver) + ":" + call.Method
		return a.matchQualified(full)
	}

	switch fn := call.Func.(type) {
	case *ast.IdentExpr:
		for _, d := range a.denied {
			if fn.Value == d {
				return d
			}
		}
	case *ast.AttrGetExpr:
		return a.matchQualified(renderExpr(fn))
	}
	return ""
}

func (a *Analyzer) matchQualified(full string) string {
	for _, d := range a.denied {
		if strings.Contains(full, d) {
			return d
		}
	}
	return ""
}

func firstMatch(names ...string) string {
	for _, n := range names {
		if n != "" {
			return n
		}
	}
	return ""
}

// renderExpr reconstructs the source text of a call target well enough
// for deny-list matching. Unrenderable subexpressions become "?".
func renderExpr(ex ast.Expr) string {
	switch e := ex.(type) {
	case *ast.IdentExpr:
		return e.Value
	case *ast.StringExpr:
		return e.Value
	case *ast.AttrGetExpr:
		if key, ok := e.Key.(*ast.StringExpr); ok {
			return renderExpr(e.Object) + "." + key.Value
		}
		return renderExpr(e.Object) + "[" + renderExpr(e.Key) + "]"
	case *ast.FuncCallExpr:
		if e.Func != nil {
			return renderExpr(e.Func) + "()"
		}
		return "?()"
	default:
		return "?"
	}
}

func countStmts(stmts []ast.Stmt, stats *TreeStats) {
	for _, st := range stmts {
		countStmt(st, stats)
	}
}

func countStmt(st ast.Stmt, stats *TreeStats) {
	switch s := st.(type) {
	case *ast.AssignStmt:
		countExprs(s.Lhs, stats)
		countExprs(s.Rhs, stats)
	case *ast.LocalAssignStmt:
		countExprs(s.Exprs, stats)
	case *ast.FuncCallStmt:
		countExpr(s.Expr, stats)
	case *ast.DoBlockStmt:
		countStmts(s.Stmts, stats)
	case *ast.WhileStmt:
		countExpr(s.Condition, stats)
		countStmts(s.Stmts, stats)
	case *ast.RepeatStmt:
		countStmts(s.Stmts, stats)
		countExpr(s.Condition, stats)
	case *ast.IfStmt:
		countExpr(s.Condition, stats)
		countStmts(s.Then, stats)
		countStmts(s.Else, stats)
	case *ast.NumberForStmt:
		countExpr(s.Init, stats)
		countExpr(s.Limit, stats)
		if s.Step != nil {
			countExpr(s.Step, stats)
		}
		countStmts(s.Stmts, stats)
	case *ast.GenericForStmt:
		countExprs(s.Exprs, stats)
		countStmts(s.Stmts, stats)
	case *ast.FuncDefStmt:
		stats.Functions++
		countStmts(s.Func.Stmts, stats)
	case *ast.ReturnStmt:
		countExprs(s.Exprs, stats)
	}
}

func countExprs(exprs []ast.Expr, stats *TreeStats) {
	for _, ex := range exprs {
		countExpr(ex, stats)
	}
}

func countExpr(ex ast.Expr, stats *TreeStats) {
	switch e := ex.(type) {
	case *ast.FunctionExpr:
		stats.Functions++
		countStmts(e.Stmts, stats)
	case *ast.TableExpr:
		stats.Tables++
		for _, f := range e.Fields {
			if f.Key != nil {
				countExpr(f.Key, stats)
			}
			countExpr(f.Value, stats)
		}
	case *ast.FuncCallExpr:
		if e.Func != nil {
			countExpr(e.Func, stats)
		}
		if e.Receiver != nil {
			countExpr(e.Receiver, stats)
		}
		countExprs(e.Args, stats)
	case *ast.AttrGetExpr:
		countExpr(e.Object, stats)
		countExpr(e.Key, stats)
	case *ast.LogicalOpExpr:
		countExpr(e.Lhs, stats)
		countExpr(e.Rhs, stats)
	case *ast.RelationalOpExpr:
		countExpr(e.Lhs, stats)
		countExpr(e.Rhs, stats)
	case *ast.StringConcatOpExpr:
		countExpr(e.Lhs, stats)
		countExpr(e.Rhs, stats)
	case *ast.ArithmeticOpExpr:
		countExpr(e.Lhs, stats)
		countExpr(e.Rhs, stats)
	case *ast.UnaryMinusOpExpr:
		countExpr(e.Expr, stats)
	case *ast.UnaryNotOpExpr:
		countExpr(e.Expr, stats)
	case *ast.UnaryLenOpExpr:
		countExpr(e.Expr, stats)
	}
}

package sandbox

import (
	"fmt"
	"strings"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// globals an expression may never reference, even though the restricted state
// would reject most of them at runtime anyway
var deniedIdents = map[string]bool{
	"os":             true,
	"io":             true,
	"debug":          true,
	"package":        true,
	"_G":             true,
	"require":        true,
	"dofile":         true,
	"loadfile":       true,
	"load":           true,
	"loadstring":     true,
	"collectgarbage": true,
	"getfenv":        true,
	"setfenv":        true,
	"getmetatable":   true,
	"setmetatable":   true,
	"rawget":         true,
	"rawset":         true,
	"rawequal":       true,
}

// CheckExpr parses expr exactly as the evaluator will run it and walks the
// tree for constructs a workflow expression has no business using: function
// definitions and any reference to the denied globals. Anything that fails to
// parse is rejected too; an expression we cannot inspect is not one we run.
func CheckExpr(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("empty expression")
	}
	chunk, err := parse.Parse(strings.NewReader("return ("+expr+")"), "expr")
	if err != nil {
		return fmt.Errorf("not a valid expression: %w", err)
	}
	return walkStmts(chunk)
}

func walkStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := walkStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func walkStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case *ast.AssignStmt:
		if err := walkExprs(st.Lhs); err != nil {
			return err
		}
		return walkExprs(st.Rhs)
	case *ast.LocalAssignStmt:
		return walkExprs(st.Exprs)
	case *ast.FuncCallStmt:
		return walkExpr(st.Expr)
	case *ast.DoBlockStmt:
		return walkStmts(st.Stmts)
	case *ast.WhileStmt:
		if err := walkExpr(st.Condition); err != nil {
			return err
		}
		return walkStmts(st.Stmts)
	case *ast.RepeatStmt:
		if err := walkExpr(st.Condition); err != nil {
			return err
		}
		return walkStmts(st.Stmts)
	case *ast.IfStmt:
		if err := walkExpr(st.Condition); err != nil {
			return err
		}
		if err := walkStmts(st.Then); err != nil {
			return err
		}
		return walkStmts(st.Else)
	case *ast.NumberForStmt:
		for _, e := range []ast.Expr{st.Init, st.Limit, st.Step} {
			if e == nil {
				continue
			}
			if err := walkExpr(e); err != nil {
				return err
			}
		}
		return walkStmts(st.Stmts)
	case *ast.GenericForStmt:
		if err := walkExprs(st.Exprs); err != nil {
			return err
		}
		return walkStmts(st.Stmts)
	case *ast.FuncDefStmt:
		return fmt.Errorf("function definitions are not allowed")
	case *ast.ReturnStmt:
		return walkExprs(st.Exprs)
	default:
		return nil
	}
}

func walkExprs(exprs []ast.Expr) error {
	for _, e := range exprs {
		if err := walkExpr(e); err != nil {
			return err
		}
	}
	return nil
}

func walkExpr(e ast.Expr) error {
	switch ex := e.(type) {
	case *ast.IdentExpr:
		if deniedIdents[ex.Value] {
			return fmt.Errorf("reference to %q is not allowed", ex.Value)
		}
		return nil
	case *ast.AttrGetExpr:
		if err := walkExpr(ex.Object); err != nil {
			return err
		}
		return walkExpr(ex.Key)
	case *ast.TableExpr:
		for _, f := range ex.Fields {
			if f.Key != nil {
				if err := walkExpr(f.Key); err != nil {
					return err
				}
			}
			if err := walkExpr(f.Value); err != nil {
				return err
			}
		}
		return nil
	case *ast.FuncCallExpr:
		if ex.Func != nil {
			if err := walkExpr(ex.Func); err != nil {
				return err
			}
		}
		if ex.Receiver != nil {
			if err := walkExpr(ex.Receiver); err != nil {
				return err
			}
		}
		return walkExprs(ex.Args)
	case *ast.LogicalOpExpr:
		if err := walkExpr(ex.Lhs); err != nil {
			return err
		}
		return walkExpr(ex.Rhs)
	case *ast.RelationalOpExpr:
		if err := walkExpr(ex.Lhs); err != nil {
			return err
		}
		return walkExpr(ex.Rhs)
	case *ast.StringConcatOpExpr:
		if err := walkExpr(ex.Lhs); err != nil {
			return err
		}
		return walkExpr(ex.Rhs)
	case *ast.ArithmeticOpExpr:
		if err := walkExpr(ex.Lhs); err != nil {
			return err
		}
		return walkExpr(ex.Rhs)
	case *ast.UnaryMinusOpExpr:
		return walkExpr(ex.Expr)
	case *ast.UnaryNotOpExpr:
		return walkExpr(ex.Expr)
	case *ast.UnaryLenOpExpr:
		return walkExpr(ex.Expr)
	case *ast.FunctionExpr:
		return fmt.Errorf("function definitions are not allowed")
	default:
		return nil
	}
}

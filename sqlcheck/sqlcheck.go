package sqlcheck

import (
	"fmt"

	"github.com/xwb1989/sqlparser"
	"xorkevin.dev/kerrors"
)

var (
	// ErrInvalidQuery is returned when a statement cannot be parsed
	ErrInvalidQuery errInvalidQuery
	// ErrParamCount is returned when the number of args does not match the placeholders
	ErrParamCount errParamCount
	// ErrReadOnly is returned when a statement may write in read only mode
	ErrReadOnly errReadOnly
)

type (
	errInvalidQuery struct{}
	errParamCount   struct{}
	errReadOnly     struct{}
)

func (e errInvalidQuery) Error() string {
	return "Invalid query"
}

func (e errParamCount) Error() string {
	return "Mismatched param count"
}

func (e errReadOnly) Error() string {
	return "Statement not read only"
}

type (
	// Kind is the kind of sql statement
	Kind int
)

const (
	KindOther Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindDDL:
		return "ddl"
	default:
		return "other"
	}
}

type (
	// Statement describes a parsed sql statement
	Statement struct {
		Kind         Kind
		Placeholders int
	}
)

// Inspect parses a query and counts its positional placeholders
func Inspect(query string) (*Statement, error) {
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return nil, kerrors.WithKind(err, ErrInvalidQuery, "Failed to parse query")
	}
	s := &Statement{
		Kind: stmtKind(stmt),
	}
	if err := sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if v, ok := node.(*sqlparser.SQLVal); ok && v.Type == sqlparser.ValArg {
			s.Placeholders++
		}
		return true, nil
	}, stmt); err != nil {
		return nil, kerrors.WithKind(err, ErrInvalidQuery, "Failed to walk query")
	}
	return s, nil
}

func stmtKind(stmt sqlparser.Statement) Kind {
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		return KindSelect
	case *sqlparser.Insert:
		return KindInsert
	case *sqlparser.Update:
		return KindUpdate
	case *sqlparser.Delete:
		return KindDelete
	case *sqlparser.DDL:
		return KindDDL
	default:
		return KindOther
	}
}

// Check verifies that nargs may be bound to the statement
func (s Statement) Check(nargs int, readonly bool) error {
	if readonly && s.Kind != KindSelect {
		return kerrors.WithKind(nil, ErrReadOnly, fmt.Sprintf("Statement of kind %s is not allowed in read only mode", s.Kind))
	}
	if nargs != s.Placeholders {
		return kerrors.WithKind(nil, ErrParamCount, fmt.Sprintf("Query has %d placeholders but %d args were provided", s.Placeholders, nargs))
	}
	return nil
}

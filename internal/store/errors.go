package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// Code classifies a storage failure.
type Code string

const (
	CodeDuplicateForm Code = "duplicate_form"
	CodeUnknownForm   Code = "unknown_form"
	CodeInvalidJSON   Code = "invalid_json"
	CodeInvalidInput  Code = "invalid_input"
	CodeNotFound      Code = "not_found"
)

// Error is a storage failure callers can act on. Err holds the driver
// error when there is one.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code Code) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}

func notFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

type violation int

const (
	noViolation violation = iota
	uniqueViolation
	foreignKeyViolation
	checkViolation
	jsonViolation
)

// constraint maps a driver error onto the constraint it violated.
func constraint(err error) violation {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		switch mattnErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return uniqueViolation
		case sqlite3.ErrConstraintForeignKey:
			return foreignKeyViolation
		case sqlite3.ErrConstraintCheck:
			return checkViolation
		}
		if mattnErr.Code == sqlite3.ErrConstraint {
			return constraintFromMessage(mattnErr.Error())
		}
		return noViolation
	}

	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		switch moderncErr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return uniqueViolation
		case sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return foreignKeyViolation
		case sqlitelib.SQLITE_CONSTRAINT_CHECK:
			return checkViolation
		}
		if moderncErr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT {
			return constraintFromMessage(moderncErr.Error())
		}
		return noViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return uniqueViolation
		case "23503":
			return foreignKeyViolation
		case "23514":
			return checkViolation
		case "22P02":
			return jsonViolation
		}
		return noViolation
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062:
			return uniqueViolation
		case 1452:
			return foreignKeyViolation
		case 3819:
			return checkViolation
		case 3140:
			return jsonViolation
		}
	}

	return noViolation
}

func constraintFromMessage(msg string) violation {
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return uniqueViolation
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return foreignKeyViolation
	case strings.Contains(msg, "CHECK constraint failed"):
		return checkViolation
	}
	return noViolation
}

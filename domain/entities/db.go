package entities

// DBValueType tags the variant held by a DBValue.
type DBValueType string

const (
	DBInt32     DBValueType = "int32"
	DBInt64     DBValueType = "int64"
	DBUint32    DBValueType = "uint32"
	DBUint64    DBValueType = "uint64"
	DBFloat     DBValueType = "float"
	DBDouble    DBValueType = "double"
	DBStr       DBValueType = "str"
	DBBoolean   DBValueType = "boolean"
	DBDate      DBValueType = "date"
	DBTime      DBValueType = "time"
	DBTimestamp DBValueType = "timestamp"
	DBBinary    DBValueType = "binary"
	DBNull      DBValueType = "null"
)

// DBValue is one query parameter or result cell. Only the field matching
// Type is meaningful; dates and times travel as strings.
type DBValue struct {
	Type   DBValueType `json:"type"`
	Int    int64       `json:"int,omitempty"`
	Uint   uint64      `json:"uint,omitempty"`
	Float  float64     `json:"float,omitempty"`
	Str    string      `json:"str,omitempty"`
	Bool   bool        `json:"bool,omitempty"`
	Binary []byte      `json:"binary,omitempty"`
}

// DBRows is a materialised result set. Truncated is set when the host
// stopped reading at its row limit.
type DBRows struct {
	Columns   []string    `json:"columns"`
	Rows      [][]DBValue `json:"rows"`
	Truncated bool        `json:"truncated,omitempty"`
}

// IsolationLevel is the isolation requested for a transaction.
type IsolationLevel string

const (
	IsolationDefault         IsolationLevel = ""
	IsolationReadUncommitted IsolationLevel = "read-uncommitted"
	IsolationReadCommitted   IsolationLevel = "read-committed"
	IsolationWriteCommitted  IsolationLevel = "write-committed"
	IsolationRepeatableRead  IsolationLevel = "repeatable-read"
	IsolationSnapshot        IsolationLevel = "snapshot"
	IsolationSerializable    IsolationLevel = "serializable"
	IsolationLinearizable    IsolationLevel = "linearizable"
)

package protocol

import "strconv"

// rowCountVerbs is the set of command verbs whose CommandComplete tag
// carries a trailing rows-affected integer.
// https://www.postgresql.org/docs/current/protocol-message-formats.html
var rowCountVerbs = map[string]bool{
	"INSERT": true,
	"SELECT": true,
	"UPDATE": true,
	"DELETE": true,
	"MERGE":  true,
	"FETCH":  true,
	"MOVE":   true,
	"COPY":   true,
}

// RowsAffected parses a CommandComplete tag of the form
// "<VERB> [<oid>] <rows>" and returns the trailing row count. INSERT tags
// carry an extra OID field ("INSERT 0 3"); every other counted verb has
// exactly one trailing field. Unrecognized verbs yield 0, not an error.
func RowsAffected(tag string) int64 {
	fields := splitFields(tag)
	if len(fields) == 0 {
		return 0
	}

	verb := fields[0]
	if !rowCountVerbs[verb] {
		return 0
	}

	last := fields[len(fields)-1]
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}

	return n
}

func splitFields(tag string) []string {
	var fields []string
	start := -1

	for i := 0; i <= len(tag); i++ {
		if i < len(tag) && tag[i] != ' ' {
			if start == -1 {
				start = i
			}
			continue
		}

		if start != -1 {
			fields = append(fields, tag[start:i])
			start = -1
		}
	}

	return fields
}

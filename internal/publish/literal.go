package publish

import "strings"

const (
	listOpenConstant      = "["
	listCloseConstant     = "]"
	listSeparatorConstant = ", "
	singleQuoteConstant   = '\''
	doubleQuoteConstant   = '"'
)

// formatListLiteral renders values the way Python prints a list of strings:
// ['a', 'b'].
func formatListLiteral(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, formatStringLiteral(value))
	}
	return listOpenConstant + strings.Join(quoted, listSeparatorConstant) + listCloseConstant
}

// formatStringLiteral quotes with single quotes unless the value contains a
// single quote and no double quote.
func formatStringLiteral(value string) string {
	quote := singleQuoteConstant
	if strings.ContainsRune(value, singleQuoteConstant) && !strings.ContainsRune(value, doubleQuoteConstant) {
		quote = doubleQuoteConstant
	}

	var builder strings.Builder
	builder.WriteRune(quote)
	for _, character := range value {
		switch character {
		case '\\':
			builder.WriteString(`\\`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\t':
			builder.WriteString(`\t`)
		case quote:
			builder.WriteRune('\\')
			builder.WriteRune(character)
		default:
			builder.WriteRune(character)
		}
	}
	builder.WriteRune(quote)
	return builder.String()
}

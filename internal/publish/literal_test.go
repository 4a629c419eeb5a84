package publish

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildCommitMessage(t *testing.T) {
	testCases := []struct {
		name            string
		chartNames      []string
		chartVersions   []string
		expectedMessage string
	}{
		{
			name:            "TwoCharts",
			chartNames:      []string{"a", "b"},
			chartVersions:   []string{"1.0", "2.3"},
			expectedMessage: "Bump chart dependencies ['a', 'b'] to versions ['1.0', '2.3'], respectively",
		},
		{
			name:            "SingleChart",
			chartNames:      []string{"binderhub"},
			chartVersions:   []string{"0.2.0-n361.h6f57706"},
			expectedMessage: "Bump chart dependencies ['binderhub'] to versions ['0.2.0-n361.h6f57706'], respectively",
		},
		{
			name:            "Empty",
			expectedMessage: "Bump chart dependencies [] to versions [], respectively",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expectedMessage, BuildCommitMessage(testCase.chartNames, testCase.chartVersions))
		})
	}
}

func TestFormatStringLiteralQuoting(t *testing.T) {
	testCases := map[string]string{
		"plain":        `'plain'`,
		"it's":         `"it's"`,
		`say "hi"`:     `'say "hi"'`,
		`both ' and "`: `'both \' and "'`,
		`back\slash`:   `'back\\slash'`,
		"line\nbreak":  `'line\nbreak'`,
	}

	for input, expected := range testCases {
		require.Equal(t, expected, formatStringLiteral(input), input)
	}
}

package compose

import (
	"testing"

	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    []string
		wantErr bool
	}{
		{name: "list", doc: "- acme:app@1.0.0\n- acme:tool\n", want: []string{"acme:app@1.0.0", "acme:tool"}},
		{name: "mapping", doc: "components:\n  - acme:app\n  - ' acme:tool '\n", want: []string{"acme:app", "acme:tool"}},
		{name: "empty list", doc: "[]", wantErr: true},
		{name: "empty entry", doc: "- acme:app\n- ''\n", wantErr: true},
		{name: "not yaml", doc: "components: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDocument([]byte(tt.doc))
			if tt.wantErr {
				var cfgErr *domainerrors.ConfigError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

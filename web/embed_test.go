package web

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbudget/internal/assets"
	"smartbudget/internal/cache"
	applog "smartbudget/internal/log"
)

func TestStaticFSHoldsAppShell(t *testing.T) {
	fsys := StaticFS()
	for _, name := range []string{"index.html", "manifest.json", "app.js", "styles.css"} {
		_, err := fs.Stat(fsys, name)
		assert.NoError(t, err, name)
	}
}

func TestShellInstallsFromEmbeddedFiles(t *testing.T) {
	store := cache.NewLRUCache[assets.Entry](32, 0)
	c := assets.New("test-v1", store, assets.FileOrigin(StaticFS()), assets.DefaultShell, applog.Discard())

	require.NoError(t, c.Install(context.Background()))
	assert.Equal(t, len(assets.DefaultShell), store.Size())
}

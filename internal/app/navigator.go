package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/prepadmin/pkg/apiclient"
	"github.com/aussiebroadwan/prepadmin/pkg/slogx"
)

// terminalNavigator stands in for the browser redirect: there is no login
// page to open, so the user is told to run the login command instead.
type terminalNavigator struct {
	app *Application

	mu sync.Mutex
}

func (n *terminalNavigator) Navigate(ctx context.Context, path string) {
	slogx.FromContext(ctx).Info("session ended, login required", "path", path)

	n.mu.Lock()
	defer n.mu.Unlock()

	if path == apiclient.LoginPath {
		fmt.Fprintln(n.app.Stderr, "prepadmin: session expired, run `prepadmin login` to sign in again")
		return
	}
	fmt.Fprintf(n.app.Stderr, "prepadmin: navigate to %s\n", path)
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"

	"github.com/gridwork/cluster/pkg/watch"
)

// mockEventSource is a test double for EventSource whose Watch call is
// supplied by the test.
type mockEventSource struct {
	watchFunc func(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error)
}

func (m *mockEventSource) Watch(ctx context.Context, opts *watch.Options) (<-chan watch.Event, error) {
	if m.watchFunc != nil {
		return m.watchFunc(ctx, opts)
	}
	ch := make(chan watch.Event)
	close(ch)
	return ch, nil
}

/*
Package arbiter is a session authority and orchestration engine for
multiplayer turn-based play. It decides how much human arbiter involvement
each proposed action needs, survives the arbiter dropping off, correlates
asynchronous dice rolls, and drives multi-phase workflows to an atomic
all-or-nothing outcome.

# Concept

Every session has one arbiter (a game master, a referee) and many
participants. Participants propose actions; the engine classifies each one
as Automatic, Reviewable, or ManualOnly and runs its workflow accordingly.
Unknown action types fail safe to ManualOnly. While the arbiter is
unreachable the session buffers new actions and replays them in order on
reconnect. The engine owns no world state: completed workflows commit their
state changes through a host-provided store, all-or-nothing.

This Hexagonal Architecture keeps the core decoupled from transports and
storage, so the engine embeds in any host: an HTTP service, an MCP server,
or a game process linking it directly.

# Usage

Initialize the engine with a definition repository (workflow and policy
documents) and a commit store, then feed it the four inbound operations.

	package main

	import (
		"context"
		"log"
		"time"

		"github.com/aretw0/arbiter"
		"github.com/aretw0/arbiter/pkg/domain"
	)

	func main() {
		eng, err := arbiter.New("./definitions")
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Shutdown(context.Background())

		ctx := context.Background()

		// A participant proposes an action.
		ack, err := eng.Submit(ctx, domain.ActionRequest{
			SessionID:  "table-1",
			ProposerID: "pc-1",
			ActionType: "move",
			Payload:    map[string]any{"to": "b2"},
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Println("ack:", ack.Status)

		// The arbiter's client answers heartbeats and roll requests.
		_ = eng.HeartbeatPong("table-1", time.Now())
	}

Outcomes, roll requests, heartbeat pings, and liveness transitions arrive
through the Transport the host wires in (see pkg/ports), or through
LifecycleHooks for in-process subscribers.
*/
package arbiter

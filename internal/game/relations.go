package game

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Standing buckets a reputation score into a label the narrator can use.
type Standing string

const (
	StandingHostile  Standing = "hostile"
	StandingWary     Standing = "wary"
	StandingNeutral  Standing = "neutral"
	StandingFriendly Standing = "friendly"
	StandingAllied   Standing = "allied"
)

// FactionStanding is one character-faction reputation edge.
type FactionStanding struct {
	Faction    string   `json:"faction"`
	Reputation float64  `json:"reputation"` // -1 to 1
	Standing   Standing `json:"standing"`
	History    []string `json:"history,omitempty"`
}

// FactionGraph stores character-faction reputation in Neo4j. Optional:
// a nil graph renders no faction lines in the snapshot.
type FactionGraph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewFactionGraph connects to Neo4j and verifies connectivity.
func NewFactionGraph(ctx context.Context, uri, user, password string, logger *zap.Logger) (*FactionGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect: %w", err)
	}
	logger.Info("Neo4j connected", zap.String("uri", uri))
	return &FactionGraph{driver: driver, logger: logger}, nil
}

// SetReputation creates or overwrites a reputation edge.
func (g *FactionGraph) SetReputation(ctx context.Context, character, faction string, reputation float64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (c:Character {name: $character})
		 MERGE (f:Faction {name: $faction})
		 MERGE (c)-[r:REGARDS]->(f)
		 ON CREATE SET r.reputation = $rep, r.history = [], r.updated_at = datetime()
		 ON MATCH SET r.reputation = $rep, r.updated_at = datetime()`,
		map[string]interface{}{
			"character": character,
			"faction":   faction,
			"rep":       clampReputation(reputation),
		})
	if err != nil {
		return fmt.Errorf("set reputation: %w", err)
	}
	return nil
}

// RecordDeed shifts a faction's view of the character and appends a
// one-line account of why.
func (g *FactionGraph) RecordDeed(ctx context.Context, character, faction, summary string, shift float64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (c:Character {name: $character})
		 MERGE (f:Faction {name: $faction})
		 MERGE (c)-[r:REGARDS]->(f)
		 ON CREATE SET r.reputation = 0.0, r.history = []
		 SET r.reputation = CASE
		       WHEN r.reputation + $shift > 1.0 THEN 1.0
		       WHEN r.reputation + $shift < -1.0 THEN -1.0
		       ELSE r.reputation + $shift END,
		     r.history = r.history + $summary,
		     r.updated_at = datetime()`,
		map[string]interface{}{
			"character": character,
			"faction":   faction,
			"summary":   summary,
			"shift":     shift,
		})
	if err != nil {
		return fmt.Errorf("record deed: %w", err)
	}
	return nil
}

// Standings returns all faction edges for a character.
func (g *FactionGraph) Standings(ctx context.Context, character string) ([]FactionStanding, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (c:Character {name: $character})-[r:REGARDS]->(f:Faction)
		 RETURN f.name, r.reputation, r.history`,
		map[string]interface{}{"character": character})
	if err != nil {
		return nil, fmt.Errorf("standings: %w", err)
	}

	var standings []FactionStanding
	for result.Next(ctx) {
		rec := result.Record()
		name, _ := rec.Get("f.name")
		rep, _ := rec.Get("r.reputation")
		history, _ := rec.Get("r.history")

		var hist []string
		if h, ok := history.([]interface{}); ok {
			for _, v := range h {
				if s, ok := v.(string); ok {
					hist = append(hist, s)
				}
			}
		}

		score, _ := rep.(float64)
		standings = append(standings, FactionStanding{
			Faction:    name.(string),
			Reputation: score,
			Standing:   StandingFor(score),
			History:    hist,
		})
	}
	return standings, nil
}

// Close tears down the driver.
func (g *FactionGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// StandingFor buckets a reputation score.
func StandingFor(reputation float64) Standing {
	switch {
	case reputation <= -0.6:
		return StandingHostile
	case reputation <= -0.2:
		return StandingWary
	case reputation < 0.2:
		return StandingNeutral
	case reputation < 0.6:
		return StandingFriendly
	}
	return StandingAllied
}

func clampReputation(r float64) float64 {
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

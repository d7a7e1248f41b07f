package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/lore"
)

// RegisterBuiltins installs the standard game commands.
func RegisterBuiltins(r *Registry) {
	r.Register(&Command{
		Name:        "help",
		Description: "List available commands",
		Usage:       "/help",
		Handler:     handleHelp,
	})
	r.Register(&Command{
		Name:        "new",
		Description: "Start a new save with a fresh character",
		Usage:       "/new <character name> [save name]",
		Handler:     handleNew,
	})
	r.Register(&Command{
		Name:        "load",
		Description: "Resume a save by name",
		Usage:       "/load <save name>",
		Handler:     handleLoad,
	})
	r.Register(&Command{
		Name:        "save",
		Description: "Checkpoint the current save",
		Usage:       "/save",
		Handler:     handleSave,
	})
	r.Register(&Command{
		Name:        "saves",
		Description: "List save files",
		Usage:       "/saves",
		Handler:     handleSaves,
	})
	r.Register(&Command{
		Name:        "roll",
		Description: "Roll dice",
		Usage:       "/roll <notation, e.g. 2d6+1>",
		Handler:     handleRoll,
	})
	r.Register(&Command{
		Name:        "sheet",
		Description: "Show the character sheet",
		Usage:       "/sheet",
		Handler:     handleSheet,
	})
	r.Register(&Command{
		Name:        "lore",
		Description: "Look up a lore book entry by name",
		Usage:       "/lore <name>",
		Handler:     handleLore,
	})
	r.Register(&Command{
		Name:        "recall",
		Description: "Search lore and past transcript",
		Usage:       "/recall <query>",
		Handler:     handleRecall,
	})
	r.Register(&Command{
		Name:        "compress",
		Description: "Fold window overflow into the digest now",
		Usage:       "/compress",
		Handler:     handleCompress,
	})
	r.Register(&Command{
		Name:        "wipe",
		Description: "Clear the digest",
		Usage:       "/wipe",
		Handler:     handleWipe,
	})
	r.Register(&Command{
		Name:        "strain",
		Description: "Show the current context strain tier",
		Usage:       "/strain",
		Handler:     handleStrain,
	})
	r.Register(&Command{
		Name:        "diag",
		Description: "Show the prompt budget breakdown",
		Usage:       "/diag",
		Handler:     handleDiag,
	})
}

func needSession(cc *CommandContext) *CommandResult {
	if cc.Session == nil {
		return &CommandResult{Content: "No active save here. Use /new or /load first."}
	}
	return nil
}

func handleHelp(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	for _, cmd := range cc.Registry.List() {
		sb.WriteString(fmt.Sprintf("  %-28s %s\n", cmd.Usage, cmd.Description))
	}
	return &CommandResult{Content: sb.String()}, nil
}

func handleNew(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return &CommandResult{Content: "Usage: /new <character name> [save name]"}, nil
	}
	charName := fields[0]
	saveName := charName
	if len(fields) > 1 {
		saveName = strings.Join(fields[1:], " ")
	}

	s, err := cc.Sessions.Create(ctx, saveName, charName)
	if err != nil {
		return nil, fmt.Errorf("create save: %w", err)
	}
	cc.Sessions.Attach(cc.SurfaceKey(), s)
	return &CommandResult{
		Content: fmt.Sprintf("Save %q started. %s stands at %s, %s.",
			saveName, charName, s.Character().Location, s.Clock().Stamp()),
	}, nil
}

func handleLoad(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
	if args == "" {
		return &CommandResult{Content: "Usage: /load <save name>"}, nil
	}
	s, err := cc.Sessions.Load(ctx, args)
	if err != nil {
		return &CommandResult{Content: fmt.Sprintf("Could not load %q: %v", args, err)}, nil
	}
	cc.Sessions.Attach(cc.SurfaceKey(), s)
	return &CommandResult{
		Content: fmt.Sprintf("Resumed %q. %s — window %d blocks, digest %d tokens.",
			args, s.Clock().Stamp(), s.Window().Len(), s.Digest().Cost()),
	}, nil
}

func handleSave(ctx context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	if res := needSession(cc); res != nil {
		return res, nil
	}
	if err := cc.Session.Checkpoint(ctx); err != nil {
		return nil, err
	}
	return &CommandResult{Content: "Checkpoint written."}, nil
}

func handleSaves(ctx context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	metas, err := cc.Sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return &CommandResult{Content: "No saves yet. /new starts one."}, nil
	}
	var sb strings.Builder
	sb.WriteString("Saves:\n")
	for _, m := range metas {
		sb.WriteString(fmt.Sprintf("  %s (%s)\n", m.Name, m.ID))
	}
	return &CommandResult{Content: sb.String(), Data: metas}, nil
}

func handleRoll(_ context.Context, args string, cc *CommandContext) (*CommandResult, error) {
	if args == "" {
		return &CommandResult{Content: "Usage: /roll <notation, e.g. 2d6+1>"}, nil
	}
	roll, err := cc.Roller.Roll(args)
	if err != nil {
		return &CommandResult{Content: fmt.Sprintf("Bad notation %q: %v", args, err)}, nil
	}
	return &CommandResult{
		Content: fmt.Sprintf("%s → %v = %d", roll.Notation, roll.Dice, roll.Total),
		Data:    roll,
	}, nil
}

func handleSheet(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	if res := needSession(cc); res != nil {
		return res, nil
	}
	snapshot := game.RenderSnapshot(cc.Session.Character(), cc.Session.Clock(), nil)
	return &CommandResult{Content: snapshot}, nil
}

func handleLore(_ context.Context, args string, cc *CommandContext) (*CommandResult, error) {
	if args == "" {
		return &CommandResult{Content: "Usage: /lore <name>"}, nil
	}
	if cc.Book == nil {
		return &CommandResult{Content: "No lore book loaded."}, nil
	}
	entry, ok := cc.Book.Lookup(args)
	if !ok {
		return &CommandResult{Content: fmt.Sprintf("Nothing in the book about %q.", args)}, nil
	}
	return &CommandResult{Content: fmt.Sprintf("%s\n%s", entry.Name, entry.Text), Data: entry}, nil
}

func handleRecall(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
	if res := needSession(cc); res != nil {
		return res, nil
	}
	if args == "" {
		return &CommandResult{Content: "Usage: /recall <query>"}, nil
	}
	results, err := cc.Session.Recall(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &CommandResult{Content: "Nothing surfaced."}, nil
	}
	return &CommandResult{Content: lore.FormatResults(results), Data: results}, nil
}

func handleCompress(ctx context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	if res := needSession(cc); res != nil {
		return res, nil
	}
	before := cc.Session.Window().TotalCost()
	cc.Session.Compress(ctx)
	after := cc.Session.Window().TotalCost()
	return &CommandResult{
		Content: fmt.Sprintf("Window %d → %d tokens, digest now %d tokens.",
			before, after, cc.Session.Digest().Cost()),
	}, nil
}

func handleWipe(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	if res := needSession(cc); res != nil {
		return res, nil
	}
	cc.Session.Wipe()
	return &CommandResult{Content: "Digest cleared."}, nil
}

func handleStrain(ctx context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	if res := needSession(cc); res != nil {
		return res, nil
	}
	pack, err := cc.Session.Assemble(ctx, "")
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Content: fmt.Sprintf("Strain %s — requested %d, packed %d.",
			pack.Tier, pack.Requested, pack.TotalUsed),
		Data: pack,
	}, nil
}

func handleDiag(ctx context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
	if res := needSession(cc); res != nil {
		return res, nil
	}
	pack, err := cc.Session.Assemble(ctx, "")
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Strain %s, %d/%d tokens\n", pack.Tier, pack.TotalUsed, pack.Requested))
	for _, sec := range pack.Sections {
		state := fmt.Sprintf("%d/%d", sec.Used, sec.Budget)
		if sec.Dropped {
			state = "dropped"
		}
		sb.WriteString(fmt.Sprintf("  %-16s %s\n", sec.Name, state))
	}
	for _, note := range pack.Notes {
		sb.WriteString("  ! " + note + "\n")
	}
	return &CommandResult{Content: sb.String(), Data: pack}, nil
}

// Package commands maps Discord slash commands onto auction room
// operations.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
)

// Options are the options of one slash command invocation, by name.
type Options map[string]*discordgo.ApplicationCommandInteractionDataOption

func (o Options) str(name string) string {
	if opt, ok := o[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (o Options) integer(name string) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return 0
}

// Handlers process Discord interactions.
type Handlers struct {
	auction *auction.Manager
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(mgr *auction.Manager, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		auction: mgr,
		logger:  logger,
		tracer:  tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/bot/commands"),
	}
}

func roomOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "room",
		Description: "Room code",
		Required:    true,
	}
}

func teamOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "team",
		Description: desc,
		Required:    true,
	}
}

func roomCommand(name, desc string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: desc,
		Options:     []*discordgo.ApplicationCommandOption{roomOption()},
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "auction-create",
			Description: "Create an auction room and take a team",
			Options:     []*discordgo.ApplicationCommandOption{teamOption("Your franchise")},
		},
		{
			Name:        "auction-join",
			Description: "Join an auction room",
			Options:     []*discordgo.ApplicationCommandOption{roomOption(), teamOption("Your franchise")},
		},
		roomCommand("auction-start", "Put the first player on the block"),
		{
			Name:        "bid",
			Description: "Bid on the current player",
			Options: []*discordgo.ApplicationCommandOption{
				roomOption(),
				teamOption("The team bidding"),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Bid in Lakhs",
					Required:    true,
					MinValue:    ptr(1.0),
				},
			},
		},
		roomCommand("sell", "Close bidding on the current player"),
		roomCommand("skip", "Pass on the current player"),
		roomCommand("pause", "Pause or resume the timer"),
		roomCommand("auction-state", "Show the player on the block"),
		roomCommand("auction-end", "End bidding and open team selection"),
		roomCommand("standings", "Show every team's purse and squad size"),
	}
}

func ptr[T any](v T) *T { return &v }

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	opts := make(Options, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = o
	}

	username := ""
	switch {
	case i.Member != nil && i.Member.User != nil:
		username = i.Member.User.Username
	case i.User != nil:
		username = i.User.Username
	}

	respond(s, i, h.Dispatch(context.Background(), data.Name, username, opts))
}

// Dispatch runs the named command as username and returns the reply.
func (h *Handlers) Dispatch(ctx context.Context, name, username string, opts Options) string {
	ctx, span := h.tracer.Start(ctx, "InteractionCreate",
		trace.WithAttributes(attribute.String("command", name)),
	)
	defer span.End()

	room := strings.ToUpper(opts.str("room"))
	switch name {
	case "auction-create":
		r, err := h.auction.CreateRoom(ctx, username, opts.str("team"), true)
		if err != nil {
			return h.failure(ctx, name, err)
		}
		return fmt.Sprintf("Room **%s** created. Share the code so other teams can join.", r.Code)

	case "auction-join":
		if err := h.auction.JoinRoom(ctx, room, username, opts.str("team")); err != nil {
			return h.failure(ctx, name, err)
		}
		return fmt.Sprintf("**%s** joined room **%s**.", opts.str("team"), room)

	case "auction-start":
		st, err := h.auction.Start(ctx, room)
		if err != nil {
			return h.failure(ctx, name, err)
		}
		return formatState(st)

	case "bid":
		team, amount := opts.str("team"), opts.integer("amount")
		timer, err := h.auction.PlaceBid(ctx, room, team, amount)
		if err != nil {
			return h.failure(ctx, name, err)
		}
		return fmt.Sprintf("**%s** bids **%s**. %ds on the clock.", team, lakhs(amount), timer)

	case "sell":
		hasNext, err := h.auction.Sell(ctx, room)
		if err != nil {
			return h.failure(ctx, name, err)
		}
		if !hasNext {
			return "Auction complete - no more players."
		}
		st, err := h.auction.State(ctx, room, "")
		if err != nil {
			return h.failure(ctx, name, err)
		}
		return "Player sold.\n" + formatState(st)

	case "skip":
		if err := h.auction.Skip(ctx, room); err != nil {
			return h.failure(ctx, name, err)
		}
		return "Player skipped."

	case "pause":
		paused, timer, err := h.auction.TogglePause(ctx, room)
		if err != nil {
			return h.failure(ctx, name, err)
		}
		if paused {
			return fmt.Sprintf("Auction paused with %ds left.", timer)
		}
		return "Auction resumed."

	case "auction-state":
		st, err := h.auction.State(ctx, room, "")
		if err != nil {
			return h.failure(ctx, name, err)
		}
		return formatState(st)

	case "auction-end":
		qualified, err := h.auction.EndAuction(ctx, room)
		if err != nil {
			return h.failure(ctx, name, err)
		}
		return fmt.Sprintf("Auction ended. %d team(s) qualified for team selection.", qualified)

	case "standings":
		teams, err := h.auction.Summary(ctx, room)
		if err != nil {
			return h.failure(ctx, name, err)
		}
		if len(teams) == 0 {
			return "No teams in this room."
		}
		var b strings.Builder
		b.WriteString("**Standings:**\n")
		for idx, t := range teams {
			fmt.Fprintf(&b, "%d. %s: %.2f Cr left, %d players\n", idx+1, t.Team, t.BudgetRemaining, t.PlayersCount)
		}
		return b.String()

	default:
		return "Unknown command"
	}
}

// failure turns err into a reply. Internal errors are logged and not shown.
func (h *Handlers) failure(ctx context.Context, command string, err error) string {
	if auctionerrors.KindOf(err) == auctionerrors.KindInternal {
		h.logger.ErrorContext(ctx, "command failed",
			slog.String("command", command),
			slog.Any("error", err),
		)
		return "Something went wrong, try again."
	}
	return auctionerrors.MessageOf(err)
}

func lakhs(amount int) string {
	if amount >= 100 {
		return fmt.Sprintf("%.2f Cr", float64(amount)/100)
	}
	return fmt.Sprintf("%d L", amount)
}

func formatState(st *auction.State) string {
	if st.CurrentPlayer == nil {
		return fmt.Sprintf("Room **%s**: no player on the block.", st.RoomCode)
	}
	p := st.CurrentPlayer
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s, %s), base %s\n", p.Name, p.Role, p.Country, lakhs(p.BasePrice))
	switch {
	case st.SoldStatus != nil:
		fmt.Fprintf(&b, "Result: %s", *st.SoldStatus)
		if st.SoldTeam != nil && st.SoldPrice != nil {
			fmt.Fprintf(&b, " to %s for %s", *st.SoldTeam, lakhs(*st.SoldPrice))
		}
	case st.HighestBidder != nil:
		fmt.Fprintf(&b, "Current bid: %s by %s, %ds left", lakhs(st.CurrentBid), *st.HighestBidder, st.Timer)
	default:
		fmt.Fprintf(&b, "No bids yet, %ds left", st.Timer)
	}
	if st.IsPaused {
		b.WriteString(" (paused)")
	}
	return b.String()
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}

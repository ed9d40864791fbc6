package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sakanhub/sakan-go"
)

func newListingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Browse and manage listings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Listings.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			rows := [][]string{}
			for _, l := range app.Listings.Items() {
				rows = append(rows, []string{
					l.ID,
					truncate(l.Name, 32),
					string(l.Type),
					fmt.Sprintf("%.0f", l.Price),
					truncate(l.Location, 24),
					strconv.FormatBool(l.Available),
				})
			}
			printTable([]string{"ID", "NAME", "TYPE", "PRICE", "LOCATION", "AVAILABLE"}, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			l, err := app.Listings.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Name:      %s\n", l.Name)
			fmt.Printf("Type:      %s (%s)\n", l.Type, l.Status)
			fmt.Printf("Location:  %s\n", l.Location)
			fmt.Printf("Price:     %.0f", l.Price)
			if l.Discount > 0 {
				fmt.Printf(" (%.0f%% off)", l.Discount)
			}
			fmt.Println()
			fmt.Printf("Rooms:     %d rooms, %d beds, %d bathrooms\n", l.Rooms, l.Beds, l.Bathrooms)
			fmt.Printf("Available: %v\n", l.Available)
			if l.Description != "" {
				fmt.Printf("\n%s\n", l.Description)
			}
			return nil
		},
	})

	var add struct {
		name, location, description string
		ltype, status               string
		price                       float64
		rooms, beds, bathrooms      int
		available                   bool
	}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a listing (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			l, err := app.Listings.Add(cmd.Context(), sakan.Listing{
				Name:        add.name,
				Location:    add.location,
				Description: add.description,
				Type:        sakan.ListingType(add.ltype),
				Status:      sakan.ListingStatus(add.status),
				Price:       add.price,
				Rooms:       add.rooms,
				Beds:        add.beds,
				Bathrooms:   add.bathrooms,
				Available:   add.available,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created %s: %s\n", l.ID, l.Name)
			return nil
		},
	}
	addCmd.Flags().StringVar(&add.name, "name", "", "listing name")
	addCmd.Flags().StringVar(&add.location, "location", "", "location")
	addCmd.Flags().StringVar(&add.description, "description", "", "description")
	addCmd.Flags().StringVar(&add.ltype, "type", string(sakan.ListingFlat), "flat, room, bed, villa, chalet or studio")
	addCmd.Flags().StringVar(&add.status, "status", string(sakan.ListingForRent), "rent, sale or summer")
	addCmd.Flags().Float64Var(&add.price, "price", 0, "price")
	addCmd.Flags().IntVar(&add.rooms, "rooms", 1, "number of rooms")
	addCmd.Flags().IntVar(&add.beds, "beds", 1, "number of beds")
	addCmd.Flags().IntVar(&add.bathrooms, "bathrooms", 1, "number of bathrooms")
	addCmd.Flags().BoolVar(&add.available, "available", true, "currently available")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:     "duplicate <id>",
		Aliases: []string{"dup"},
		Short:   "Clone a listing (admin)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Listings.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			dup, err := app.Listings.Duplicate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created %s: %s\n", dup.ID, dup.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a listing (admin)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Listings.Remove(cmd.Context(), args[0])
		},
	})

	return cmd
}

func newBookingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "View and decide booking requests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List booking requests (yours, or all if admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Bookings.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			rows := [][]string{}
			for _, b := range app.Bookings.Items() {
				rows = append(rows, []string{
					b.ID,
					b.ListingID,
					truncate(b.FullName, 24),
					b.Phone,
					string(b.Status),
				})
			}
			printTable([]string{"ID", "LISTING", "NAME", "PHONE", "STATUS"}, rows)
			return nil
		},
	})

	var req struct {
		listing, name, faculty, batch, phone, altPhone string
	}
	requestCmd := &cobra.Command{
		Use:   "request",
		Short: "Submit a booking request for a listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			b, err := app.Bookings.Request(cmd.Context(), sakan.BookingRequest{
				ListingID: req.listing,
				FullName:  req.name,
				Faculty:   req.faculty,
				Batch:     req.batch,
				Phone:     req.phone,
				AltPhone:  req.altPhone,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Submitted %s (%s)\n", b.ID, b.Status)
			return nil
		},
	}
	requestCmd.Flags().StringVar(&req.listing, "listing", "", "listing id")
	requestCmd.Flags().StringVar(&req.name, "name", "", "your full name")
	requestCmd.Flags().StringVar(&req.faculty, "faculty", "", "your faculty")
	requestCmd.Flags().StringVar(&req.batch, "batch", "", "your batch")
	requestCmd.Flags().StringVar(&req.phone, "phone", "", "contact phone, 10 or 11 digits")
	requestCmd.Flags().StringVar(&req.altPhone, "alt-phone", "", "alternative phone")
	cmd.AddCommand(requestCmd)

	decide := func(status sakan.BookingStatus) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Bookings.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			return app.Bookings.UpdateStatus(cmd.Context(), args[0], status)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending request (admin)",
		Args:  cobra.ExactArgs(1),
		RunE:  decide(sakan.BookingApproved),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending request (admin)",
		Args:  cobra.ExactArgs(1),
		RunE:  decide(sakan.BookingRejected),
	})

	return cmd
}

func newFavoritesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage your favorite listings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your favorites",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Favorites.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			for _, f := range app.Favorites.Items() {
				fmt.Println(f.ListingID)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <listing-id>",
		Short: "Favorite or unfavorite a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Favorites.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			return app.Favorites.Toggle(cmd.Context(), args[0])
		},
	})

	return cmd
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Message support (or users, if admin)",
	}

	var partner string

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if partner != "" {
				if err := app.Chat.SetActivePartner(cmd.Context(), partner); err != nil {
					return err
				}
			} else if err := app.Chat.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			me := app.Session().UserID
			for _, m := range app.Chat.Messages() {
				who := "them"
				if m.SenderID == me {
					who = "you"
				}
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt, who, m.Text)
			}
			return nil
		},
	}
	show.Flags().StringVar(&partner, "with", "", "conversation partner user id (admin)")

	send := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if partner != "" {
				if err := app.Chat.SetActivePartner(cmd.Context(), partner); err != nil {
					return err
				}
			} else if err := app.Chat.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			return app.Chat.Send(cmd.Context(), args[0], "")
		},
	}
	send.Flags().StringVar(&partner, "with", "", "conversation partner user id (admin)")

	conversations := &cobra.Command{
		Use:   "conversations",
		Short: "List open conversations (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			profiles, err := app.Chat.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{}
			for _, p := range profiles {
				rows = append(rows, []string{p.ID, p.FullName, p.Email})
			}
			printTable([]string{"ID", "NAME", "EMAIL"}, rows)
			return nil
		},
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Stream incoming messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openLiveApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app.Chat.OnNotification(func(m sakan.ChatMessage) {
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.SenderID, m.Text)
			})
			if err := app.Start(ctx); err != nil {
				return err
			}
			if partner != "" {
				if err := app.Chat.SetActivePartner(ctx, partner); err != nil {
					return err
				}
			}
			if app.ConnectionState() == sakan.StateDisconnected {
				return fmt.Errorf("realtime feed unavailable")
			}

			for _, m := range app.Chat.Messages() {
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.SenderID, m.Text)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "watching, interrupt to stop")
			<-ctx.Done()
			return nil
		},
	}
	watch.Flags().StringVar(&partner, "with", "", "conversation partner user id (admin)")

	cmd.AddCommand(show, send, conversations, watch)
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write platform settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Settings.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			rows := [][]string{}
			for _, entry := range app.Settings.Items() {
				rows = append(rows, []string{entry.Key, fmt.Sprintf("%v", entry.Value)})
			}
			printTable([]string{"KEY", "VALUE"}, rows)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a setting (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.Settings.Refresh(cmd.Context(), true); err != nil {
				return err
			}
			return app.Settings.Update(cmd.Context(), args[0], args[1])
		},
	})

	return cmd
}

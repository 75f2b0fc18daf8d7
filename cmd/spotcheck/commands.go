package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spotcheck/internal/app"
	"spotcheck/internal/domain"
)

func newLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			u, err := e.sessions.Login(cmd.Context(), domain.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", clean(u.DisplayName()))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var p domain.Profile
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			u, err := e.sessions.Register(cmd.Context(), p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if e.sessions.Current().Authenticated() {
				fmt.Fprintf(out, "Welcome, %s! You are signed in.\n", clean(u.DisplayName()))
				return nil
			}
			fmt.Fprintf(out, "Account created for %s. Run `spotcheck login` to sign in.\n", clean(u.Email))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Email, "email", "", "account email")
	f.StringVar(&p.Username, "username", "", "public user name")
	f.StringVar(&p.Password, "password", "", "password (at least 6 characters)")
	f.StringVar(&p.FirstName, "first-name", "", "first name")
	f.StringVar(&p.LastName, "last-name", "", "last name")
	f.StringVar(&p.ProfilePictureURL, "picture", "", "profile picture URL")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := envFrom(cmd).sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := envFrom(cmd).sessions.Current()
			out := cmd.OutOrStdout()
			if !s.Authenticated() {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			fmt.Fprintf(out, "%s <%s>\n", clean(s.User.DisplayName()), clean(s.User.Email))
			if exp, ok := s.TokenExpiry(); ok {
				fmt.Fprintf(out, "token expires %s\n", exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func coordsFlags(cmd *cobra.Command, lat, lng *float64) {
	cmd.Flags().Float64Var(lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(lng, "lng", 0, "longitude")
}

func nearFrom(cmd *cobra.Command, lat, lng float64) *domain.Coords {
	if !cmd.Flags().Changed("lat") && !cmd.Flags().Changed("lng") {
		return nil
	}
	return &domain.Coords{Lat: lat, Lng: lng}
}

func newPlacesCmd() *cobra.Command {
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "places",
		Short: "List places known to the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := envFrom(cmd).places.ListPlaces(cmd.Context(), nearFrom(cmd, lat, lng))
			if err != nil {
				return err
			}
			renderPlaces(cmd.OutOrStdout(), ps)
			return nil
		},
	}
	coordsFlags(cmd, &lat, &lng)
	return cmd
}

func parseRef(arg string) domain.PlaceRef {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return domain.PlaceRef{Kind: domain.RefPersisted, ID: id}
	}
	return domain.EphemeralRef(arg, errors.New("not reconciled"))
}

func newPlaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "place <id>",
		Short: "Show a place with its reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := envFrom(cmd).places.Detail(cmd.Context(), parseRef(args[0]))
			if err != nil {
				return err
			}
			renderDetail(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var lat, lng float64
	var save bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the place provider",
		Long: "Search the place provider. With --save every result is reconciled with\n" +
			"the data service so it can be reviewed and favorited by id.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			exts, err := e.places.Search(cmd.Context(), strings.Join(args, " "), nearFrom(cmd, lat, lng))
			if errors.Is(err, app.ErrSearchDisabled) {
				return fmt.Errorf("%w: set SPOTCHECK_PROVIDER_API_KEY", err)
			}
			if err != nil {
				return err
			}
			if !save {
				renderExternal(cmd.OutOrStdout(), exts)
				return nil
			}
			renderRefs(cmd.OutOrStdout(), exts, e.reconciler.ResolveAll(cmd.Context(), exts))
			return nil
		},
	}
	coordsFlags(cmd, &lat, &lng)
	cmd.Flags().BoolVar(&save, "save", false, "reconcile results into persisted places")
	return cmd
}

func newReviewCmd() *cobra.Command {
	var d domain.ReviewDraft
	cmd := &cobra.Command{
		Use:   "review <place-id>",
		Short: "Write a review for a place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFrom(cmd)
			nav := &loginNav{}
			coord := app.NewReviewCoordinator(e.sessions, e.places, nav, parseRef(args[0]))

			out, err := coord.SubmitReview(cmd.Context(), d)
			if out == app.OutcomeRedirected {
				return guardErr(nav, err)
			}
			if err != nil && out != app.OutcomeSaved {
				var re *domain.RemoteError
				if errors.As(err, &re) && re.SessionCleared {
					return fmt.Errorf("%w (%v)", errLoginFirst, err)
				}
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Review saved")
			if err != nil {
				fmt.Fprintf(w, "could not reload the place: %v\n", err)
				return nil
			}
			if detail, ok := coord.Detail(); ok {
				renderDetail(w, detail)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&d.Rating, "rating", 5, "stars, 1 to 5")
	f.StringVar(&d.Title, "title", "", "review title")
	f.StringVar(&d.Content, "content", "", "review text")
	f.StringVar(&d.VisitDate, "visit-date", "", "date of visit, YYYY-MM-DD")
	return cmd
}

func newFavoritesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List your favorite places",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nav := &loginNav{}
			ps, err := envFrom(cmd).places.Favorites(cmd.Context(), nav)
			if errors.Is(err, domain.ErrLoginRequired) {
				return guardErr(nav, err)
			}
			if err != nil {
				var re *domain.RemoteError
				if errors.As(err, &re) && re.SessionCleared {
					return fmt.Errorf("%w (%v)", errLoginFirst, err)
				}
				return err
			}
			renderPlaces(cmd.OutOrStdout(), ps)
			return nil
		},
	}
}

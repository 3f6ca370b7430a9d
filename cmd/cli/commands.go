package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/model"
	"github.com/and161185/drivepass/internal/password"
)

// sessionView is what status and login print.
type sessionView struct {
	State    string            `json:"state"`
	User     *model.UserRecord `json:"user,omitempty"`
	Polling  string            `json:"pending_verification,omitempty"`
	LoggedIn bool              `json:"logged_in"`
}

func viewOf(s model.Session, polling string) sessionView {
	return sessionView{State: s.State.String(), User: s.User, Polling: polling, LoggedIn: s.Authenticated()}
}

// start validates the cached session when the database-of-record is reachable.
// Without it a cached session cannot be confirmed and is left untouched.
func start(ctx context.Context, a *app) {
	if !a.hasDatabase() {
		return
	}
	if err := a.mgr.Start(ctx); err != nil {
		fail(err)
	}
}

func cmdStatus(ctx context.Context, a *app) {
	a.requireDatabase()
	start(ctx, a)
	email, _ := a.mgr.Polling()
	printJSON(viewOf(a.mgr.Current(), email))
}

func cmdLogin(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password")
	_ = fs.Parse(args)
	if *e == "" || *p == "" {
		fmt.Fprintln(os.Stderr, "need -e and -p")
		os.Exit(1)
	}
	a.requireDatabase()

	if err := a.mgr.SignIn(ctx, *e, *p); err != nil {
		fail(err)
	}
	printJSON(viewOf(a.mgr.Current(), ""))
}

func cmdSignup(ctx, sigCtx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	n := fs.String("n", "", "full name")
	e := fs.String("e", "", "email")
	p := fs.String("p", "", "password")
	terms := fs.Bool("terms", false, "agree to the terms of service")
	wait := fs.Bool("wait", false, "wait for verification and sign in")
	_ = fs.Parse(args)

	req := model.SignUpRequest{FullName: *n, Email: *e, Password: *p, TermsAgreed: *terms}
	if err := a.mgr.SignUp(ctx, req); err != nil {
		if errors.Is(err, errs.ErrValidation) && *p != "" {
			printRules(os.Stderr, password.Evaluate(*p))
		}
		fail(err)
	}
	fmt.Printf("Account created. A verification email was sent to %s.\n", strings.TrimSpace(*e))
	if !*wait {
		fmt.Println("Run `dp verify -token <token>` or `dp resume -wait` once you have the email.")
		return
	}
	awaitVerification(sigCtx, a)
}

func cmdResume(ctx, sigCtx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	wait := fs.Bool("wait", false, "wait for verification and sign in")
	_ = fs.Parse(args)

	email, err := a.mgr.ResumeVerification(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		fmt.Println("No pending verification.")
		return
	}
	if err != nil {
		fail(err)
	}
	fmt.Printf("Pending verification for %s.\n", email)
	if !*wait {
		return
	}
	awaitVerification(sigCtx, a)
}

// awaitVerification blocks until polling ends and reports the resulting session.
func awaitVerification(ctx context.Context, a *app) {
	if a.hasDatabase() {
		fmt.Println("Waiting for verification (Ctrl-C to stop)...")
	} else {
		fmt.Println("Waiting for verification (Ctrl-C to stop). Set DRIVEPASS_DATABASE_DSN to sign in automatically.")
	}
	if err := a.mgr.AwaitVerification(ctx); err != nil {
		fmt.Println("Stopped; run `dp resume -wait` to continue.")
		return
	}
	printJSON(viewOf(a.mgr.Current(), ""))
}

func cmdVerify(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	tok := fs.String("token", "", "token from the verification email")
	_ = fs.Parse(args)

	res, err := a.mgr.VerifyEmail(ctx, *tok)
	if err != nil {
		fail(err)
	}
	msg := res.Message
	if msg == "" {
		msg = "Email verified."
	}
	fmt.Println(msg)
}

func cmdResend(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("resend", flag.ExitOnError)
	e := fs.String("e", "", "email")
	_ = fs.Parse(args)

	res, err := a.mgr.ResendVerification(ctx, *e)
	if err != nil {
		fail(err)
	}
	msg := res.Message
	if msg == "" {
		msg = "Verification email sent."
	}
	fmt.Println(msg)
	if d := a.mgr.RetryAfter(ctx, *e); d > 0 {
		fmt.Printf("You can resend again in %s.\n", d.Round(time.Second))
	}
}

func cmdCheck(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	e := fs.String("e", "", "email")
	_ = fs.Parse(args)

	start(ctx, a)
	ok, err := a.mgr.CheckVerification(ctx, *e)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]any{"email": strings.TrimSpace(*e), "verified": ok})
}

func cmdPassword(args []string) {
	fs := flag.NewFlagSet("password", flag.ExitOnError)
	p := fs.String("p", "", "password to check")
	_ = fs.Parse(args)

	rep := password.Evaluate(*p)
	printRules(os.Stdout, rep)
	if !rep.Valid {
		os.Exit(1)
	}
}

func printRules(w io.Writer, rep password.Report) {
	for _, r := range rep.Rules {
		mark := "[x]"
		if !r.Passed {
			mark = "[ ]"
		}
		fmt.Fprintf(w, "%s %s\n", mark, r.Label)
	}
}

func cmdProfile(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	name := fs.String("name", "", "full name")
	phone := fs.String("phone", "", "phone number")
	photo := fs.String("photo", "", "profile photo URL")
	_ = fs.Parse(args)

	var upd model.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			upd.FullName = name
		case "phone":
			upd.Phone = phone
		case "photo":
			upd.PhotoURL = photo
		}
	})

	a.requireDatabase()
	start(ctx, a)
	if err := a.mgr.UpdateProfile(ctx, upd); err != nil {
		fail(err)
	}
	printJSON(viewOf(a.mgr.Current(), ""))
}

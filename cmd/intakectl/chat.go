package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"commission-intake/internal/domain"
	"commission-intake/internal/usecase"
)

// intakeSession is the part of the intake service the chat loop drives.
type intakeSession interface {
	OpenSession(ctx context.Context, handle string) (usecase.MakerSession, error)
	Turn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	Submit(ctx context.Context, in usecase.SubmitInput) (usecase.SubmitOutput, error)
}

func chatLoop(ctx context.Context, svc intakeSession, handle string, perTurn time.Duration, in io.Reader, out io.Writer) error {
	opened, err := callWithTimeout(ctx, perTurn, func(ctx context.Context) (usecase.MakerSession, error) {
		return svc.OpenSession(ctx, handle)
	})
	if err != nil {
		return err
	}
	maker, session := opened.Maker, opened.Session
	fmt.Fprintf(out, "assistant> %s\n", session.LastAssistant())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/order":
			submitted, err := callWithTimeout(ctx, perTurn, func(ctx context.Context) (usecase.SubmitOutput, error) {
				return svc.Submit(ctx, usecase.SubmitInput{Session: session, MakerID: maker.ID})
			})
			if err != nil {
				return err
			}
			session = submitted.Session
			fmt.Fprintf(out, "assistant> %s\n", submitted.Reply)
			if submitted.Commission != nil {
				fmt.Fprintf(out, "commission %s (%s) %q\n", submitted.Commission.ID, submitted.Commission.Status, submitted.Commission.Title)
				return nil
			}
			continue
		}

		turn, err := callWithTimeout(ctx, perTurn, func(ctx context.Context) (usecase.TurnOutput, error) {
			return svc.Turn(ctx, usecase.TurnInput{Session: session, Message: line, Categories: maker.Categories})
		})
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
			fmt.Fprintf(out, "! %s\n", ucErr.Reason)
			continue
		}
		if err != nil {
			return err
		}
		session = turn.Session
		fmt.Fprintf(out, "assistant> %s\n", turn.Reply)
		if session.Summary != "" {
			fmt.Fprintf(out, "  [%s | %s]\n", turn.Stage, session.Summary)
		}
	}
}

// queueLister is the part of the intake service behind the queue command.
type queueLister interface {
	Queue(ctx context.Context, handle string, limit int) (domain.Maker, []domain.Commission, error)
}

func showQueue(ctx context.Context, svc queueLister, handle string, limit int, out io.Writer) error {
	maker, commissions, err := svc.Queue(ctx, handle, limit)
	if err != nil {
		return err
	}
	printQueue(out, maker, commissions)
	return nil
}

func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func printQueue(out io.Writer, maker domain.Maker, commissions []domain.Commission) {
	fmt.Fprintf(out, "%s (%s): %d commission(s)\n", maker.Name, maker.Handle, len(commissions))
	if len(commissions) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSTATUS\tTITLE\tID")
	for _, c := range commissions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.CreatedAt.Format(time.DateTime), c.Status, c.Title, c.ID)
	}
	_ = w.Flush()
}

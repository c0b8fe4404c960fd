////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/ourlog/client/conversation"
	cstorage "gitlab.com/ourlog/client/conversation/storage"
	"gitlab.com/ourlog/client/event"
	"gitlab.com/ourlog/client/messaging"
	"gitlab.com/ourlog/client/messaging/wsclient"
	"gitlab.com/ourlog/client/messenger"
	"gitlab.com/ourlog/client/notifications"
	"gitlab.com/ourlog/client/rest"
	"gitlab.com/ourlog/client/session"
	"gitlab.com/ourlog/client/stoppable"
	"gitlab.com/ourlog/client/storage"
)

const closeTimeout = 5 * time.Second

// environment holds everything a command builds from the flags.
type environment struct {
	local    *storage.Local
	api      *rest.Client
	ws       *wsclient.Client
	cache    *cstorage.Cache
	params   messenger.Params
	bus      *event.SessionBus
	bridge   *session.Bridge
	services *stoppable.Multi

	session   *session.Session
	messenger *messenger.Messenger
}

// initEnvironment opens the local state and builds the backend clients.
// Nothing is connected yet.
func initEnvironment() *environment {
	local, err := storage.OpenLocal(
		viper.GetString(sessionFlag), viper.GetString(passwordFlag))
	if err != nil {
		jww.FATAL.Panicf("Failed to open local state: %+v", err)
	}

	restParams := rest.GetDefaultParams()
	restParams.BaseURL = viper.GetString(apiURLFlag)
	if viper.IsSet(thumbnailSizeFlag) {
		restParams.ThumbnailSize = viper.GetUint(thumbnailSizeFlag)
	}

	wsParams := wsclient.GetDefaultParams()
	wsParams.URL = viper.GetString(messagingURLFlag)

	params, err := messenger.ParseParams(viper.GetString(paramsFlag))
	if err != nil {
		jww.FATAL.Panicf("Invalid --%s: %+v", paramsFlag, err)
	}

	env := &environment{
		local:    local,
		api:      rest.NewClient(restParams, local, rest.RedirectFunc(signInRequired)),
		ws:       wsclient.New(wsParams),
		params:   params,
		bus:      event.NewSessionBus(),
		services: stoppable.NewMulti("CLI"),
	}
	env.bridge = session.NewBridge(session.GetDefaultParams(), local, env.api,
		env.ws, env.bus, rest.RedirectFunc(signInRequired), nil)

	env.services.Add(env.bus.Service())
	err = env.bus.RegisterCallback("cli", func(evt event.SessionEvent) {
		jww.INFO.Printf("[CHAT] %s", evt)
	})
	if err != nil {
		jww.FATAL.Panicf("%+v", err)
	}
	return env
}

// connect opens the message cache, connects the session and loads the
// conversation directory.
func (env *environment) connect(ctx context.Context) *messenger.Messenger {
	var err error
	env.cache, err = cstorage.NewCache(viper.GetString(cacheDbFlag), "ourlog")
	if err != nil {
		jww.FATAL.Panicf("Failed to open message cache: %+v", err)
	}

	env.session, err = env.bridge.Connect(ctx)
	if err != nil {
		if rest.IsAuthError(err) {
			fmt.Println("Not signed in.")
			os.Exit(1)
		}
		jww.FATAL.Panicf("Failed to connect: %+v", err)
	}

	env.messenger, err = messenger.New(env.session, env.api, env.cache,
		env.params, printToast, conversation.Callbacks{
			StateChanged: func(url string, s conversation.State) {
				jww.DEBUG.Printf("[CHAT] %s is %s", url, s)
			},
			MessagesChanged: newMessagePrinter(os.Stdout).print,
		})
	if err != nil {
		jww.FATAL.Panicf("Failed to start messenger: %+v", err)
	}

	if err = env.messenger.Load(ctx); err != nil {
		jww.FATAL.Panicf("Failed to load conversations: %+v", err)
	}
	return env.messenger
}

// close tears down whatever was built, in reverse order.
func (env *environment) close() {
	if env.messenger != nil {
		if err := env.messenger.Close(); err != nil {
			jww.WARN.Printf("Failed to close messenger: %+v", err)
		}
	}
	if env.session != nil {
		if err := env.session.Close(); err != nil {
			jww.WARN.Printf("Failed to close session: %+v", err)
		}
	}
	if env.cache != nil {
		if err := env.cache.Close(); err != nil {
			jww.WARN.Printf("Failed to close message cache: %+v", err)
		}
	}
	if err := env.services.Close(closeTimeout); err != nil {
		jww.WARN.Printf("Failed to stop services: %+v", err)
	}
}

// signInRequired is the CLI's sign-in entry point.
func signInRequired(reason error) {
	fmt.Fprintf(os.Stderr, "Sign-in required (%v).\nRun: ourlog-chat "+
		"login <credential>\n", errors.Cause(reason))
}

func printToast(t *notifications.Toast) {
	if t == nil {
		return
	}
	fmt.Printf("\n[new message] %s in %s: %s\n(/click to open)\n",
		t.SenderName, t.ConversationURL, t.Preview)
}

// messagePrinter prints each message of the open conversation once.
type messagePrinter struct {
	mux     sync.Mutex
	out     io.Writer
	printed map[string]map[int64]bool
}

func newMessagePrinter(out io.Writer) *messagePrinter {
	return &messagePrinter{out: out, printed: make(map[string]map[int64]bool)}
}

func (p *messagePrinter) print(url string, msgs []messaging.Message) {
	p.mux.Lock()
	defer p.mux.Unlock()
	seen := p.printed[url]
	if seen == nil {
		seen = make(map[int64]bool)
		p.printed[url] = seen
	}
	for _, m := range msgs {
		if m.ID <= 0 || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		fmt.Fprintln(p.out, formatMessage(m))
	}
}

func formatMessage(m messaging.Message) string {
	ts := time.UnixMilli(m.CreatedAt).Format("2006-01-02 15:04")
	if card, err := conversation.DecodePaymentCard(m); err == nil {
		state := "requested"
		if card.IsPaymentComplete {
			state = "paid"
		}
		return fmt.Sprintf("[%s] #%d %s: payment %s for %q (%d)", ts, m.ID,
			m.SenderID, state, card.ItemName, card.Price)
	}
	return fmt.Sprintf("[%s] #%d %s: %s", ts, m.ID, m.SenderID, m.Body)
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(ioutil.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// bindFlagHelper binds the key to a pflag.Flag used by Cobra and prints an
// error if one occurs.
func bindFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.Flags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}

func bindPersistentFlagHelper(key string, command *cobra.Command) {
	err := viper.BindPFlag(key, command.PersistentFlags().Lookup(key))
	if err != nil {
		jww.ERROR.Printf("viper.BindPFlag failed for %q: %+v", key, err)
	}
}

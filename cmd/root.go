////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment variables read by viper, e.g.
// OURLOG_APIURL.
const envPrefix = "OURLOG"

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd runs an interactive chat session.
var rootCmd = &cobra.Command{
	Use:   "ourlog-chat",
	Short: "Runs the ourlog conversation client",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if out := viper.GetString(profileCpuFlag); out != "" {
			defer profile.Start(profile.CPUProfile,
				profile.ProfilePath(out), profile.Quiet).Stop()
		}

		ctx, cancel := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer cancel()

		env := initEnvironment()
		defer env.close()

		m := env.connect(ctx)
		if url := viper.GetString(openFlag); url != "" {
			if _, err := m.Open(ctx, url); err != nil {
				jww.ERROR.Printf("[CHAT] Failed to open %s: %+v", url, err)
			}
		}

		runChat(ctx, m, os.Stdin, os.Stdout)
	},
}

// init is the initialization function for Cobra which defines commands
// and flags.
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	bindPersistentFlagHelper(logLevelFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	bindPersistentFlagHelper(logFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(sessionFlag, "s", "session",
		"Directory for the local credential and profile state")
	bindPersistentFlagHelper(sessionFlag, rootCmd)

	rootCmd.PersistentFlags().StringP(passwordFlag, "p", "",
		"Password to the local state")
	bindPersistentFlagHelper(passwordFlag, rootCmd)

	rootCmd.PersistentFlags().String(cacheDbFlag, "",
		"Path to the message cache database (empty keeps it in memory)")
	bindPersistentFlagHelper(cacheDbFlag, rootCmd)

	rootCmd.PersistentFlags().String(apiURLFlag, "http://localhost:8080",
		"Base URL of the application REST backend")
	bindPersistentFlagHelper(apiURLFlag, rootCmd)

	rootCmd.PersistentFlags().String(messagingURLFlag,
		"ws://localhost:8081/ws", "Websocket URL of the messaging backend")
	bindPersistentFlagHelper(messagingURLFlag, rootCmd)

	rootCmd.PersistentFlags().String(paramsFlag, "",
		"JSON overriding the default client parameters")
	bindPersistentFlagHelper(paramsFlag, rootCmd)

	rootCmd.Flags().String(profileCpuFlag, "",
		"Enable cpu profiling to this directory")
	bindFlagHelper(profileCpuFlag, rootCmd)

	rootCmd.Flags().String(openFlag, "",
		"Conversation to open on start")
	bindFlagHelper(openFlag, rootCmd)
}

// initConfig reads a .env file, if any, and environment variables.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to read .env file: %+v\n", err)
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))
	jww.INFO.Print(Version())
}

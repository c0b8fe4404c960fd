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

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/ourlog/client/channels"
)

// joinableList names the page marker of the joinable conversation listing.
const joinableList = "joinable"

func init() {
	conversationsCmd.Flags().Int(pageFlag, -1,
		"Page of public conversations to show (default: the last one viewed)")
	bindFlagHelper(pageFlag, conversationsCmd)

	conversationsCmd.Flags().Int(pageSizeFlag, 20,
		"Public conversations per page")
	bindFlagHelper(pageSizeFlag, conversationsCmd)

	rootCmd.AddCommand(conversationsCmd)
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Lists your conversations and one page of public ones",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := initEnvironment()
		defer env.close()
		ctx := context.Background()
		m := env.connect(ctx)

		fmt.Println("Your conversations:")
		for _, conv := range m.Directory().ListMyConversations() {
			fmt.Println("  " + formatConversation(conv, channels.RowOpenable))
		}

		if err := m.Directory().RefreshJoinable(ctx); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		joinable := m.Directory().ListJoinableConversations()

		page := viper.GetInt(pageFlag)
		if page < 0 {
			page, _ = env.local.PageMarker(joinableList)
		}
		first, last, page := pageBounds(len(joinable),
			viper.GetInt(pageSizeFlag), page)
		if err := env.local.SetPageMarker(joinableList, page); err != nil {
			jww.WARN.Printf("Failed to store page marker: %+v", err)
		}

		fmt.Printf("Public conversations (page %d):\n", page)
		for _, conv := range joinable[first:last] {
			fmt.Println("  " + formatConversation(conv, channels.RowOpenable))
		}
	},
}

// pageBounds returns the slice bounds of page in a list of n items, clamping
// the page to the last one.
func pageBounds(n, size, page int) (first, last, clamped int) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	pages := (n + size - 1) / size
	if pages > 0 && page >= pages {
		page = pages - 1
	}
	first = page * size
	if first > n {
		first = n
	}
	last = first + size
	if last > n {
		last = n
	}
	return first, last, page
}

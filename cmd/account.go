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
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/rest"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	avatarCmd.Flags().Uint(thumbnailSizeFlag, 256,
		"Width in pixels the image is scaled to before upload")
	bindFlagHelper(thumbnailSizeFlag, avatarCmd)
	rootCmd.AddCommand(avatarCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <credential>",
	Short: "Stores the credential issued by the ourlog sign-in page",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := initEnvironment()
		defer env.close()
		if err := env.bridge.Login(args[0]); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		fmt.Println("Credential stored.")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Removes the stored credential",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := initEnvironment()
		defer env.close()
		if err := env.bridge.Logout(nil); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		fmt.Println("Signed out.")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Prints the stored profile summary",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		env := initEnvironment()
		defer env.close()
		if _, ok := env.local.Credential(); !ok {
			fmt.Println("Not signed in.")
			return
		}
		ps, ok := env.local.ProfileSummary()
		if !ok {
			fmt.Println("Signed in; profile not loaded yet.")
			return
		}
		fmt.Printf("%s (%s) %s\n", ps.Nickname, ps.UserID, ps.AvatarPath)
	},
}

var avatarCmd = &cobra.Command{
	Use:   "avatar <image>",
	Short: "Uploads a profile picture, scaled down to a thumbnail",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := initEnvironment()
		defer env.close()

		ps, ok := env.local.ProfileSummary()
		if !ok {
			jww.FATAL.Panicf("No profile summary stored; run the chat " +
				"once to load it")
		}
		id, err := strconv.ParseInt(ps.UserID, 10, 64)
		if err != nil {
			jww.FATAL.Panicf("Stored user ID %q is not numeric", ps.UserID)
		}

		f, err := os.Open(args[0])
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer f.Close()

		res, err := env.api.UploadProfileImage(context.Background(),
			rest.UserID(id), filepath.Base(args[0]), f)
		if err != nil {
			jww.FATAL.Panicf("Failed to upload %s: %+v", args[0], err)
		}

		ps.AvatarPath = res.ThumbnailURL
		if err = env.local.SetProfileSummary(ps); err != nil {
			jww.WARN.Printf("Failed to store profile summary: %+v", err)
		}
		fmt.Printf("Uploaded %s\n", res.ImageURL)
	},
}

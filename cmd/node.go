package cmd

import (
	"context"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pattisdr/osf.io/internal/config"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "node commands",
}

var contributorCmd = &cobra.Command{
	Use:   "contributor",
	Short: "contributor commands",
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "user commands",
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	nodeCmd.AddCommand(createNodeCmd())
	nodeCmd.AddCommand(getNodeCmd())
	nodeCmd.AddCommand(childrenCmd())
	nodeCmd.AddCommand(logsCmd())
	nodeCmd.AddCommand(privacyCmd())
	nodeCmd.AddCommand(forkNodeCmd())
	nodeCmd.AddCommand(registerNodeCmd())
	nodeCmd.AddCommand(templateNodeCmd())
	nodeCmd.AddCommand(removeNodeCmd())

	rootCmd.AddCommand(contributorCmd)
	contributorCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	contributorCmd.AddCommand(addContributorCmd())
	contributorCmd.AddCommand(removeContributorCmd())
	contributorCmd.AddCommand(listContributorsCmd())

	rootCmd.AddCommand(userCmd)
	userCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	userCmd.AddCommand(createUserCmd())
}

func createNodeCmd() *cobra.Command {
	var userID string
	var title string
	var description string
	var category string
	var parentGuid string

	var required = []string{"user-id", "title"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a node",
		Example: "osf node create -u <user-id> -t <title> -c <category> -p <parent-guid>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}

			parentID := ""
			if parentGuid != "" {
				parent, err := svc.Resolve(ctx, parentGuid)
				if fatalIf(err) {
					return
				}
				parentID = parent.ID
			}

			node, err := svc.CreateNode(ctx, &service.CreateNodeInput{
				Title:       title,
				Description: description,
				Category:    category,
				ParentID:    parentID,
			}, a)
			if fatalIf(err) {
				return
			}

			guid, err := svc.Guid(ctx, node.ID)
			if fatalIf(err) {
				return
			}

			logrus.Infof("node created with guid: %s", guid)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&title, "title", "t", "", "node title (required)")
	command.Flags().StringVarP(&description, "description", "d", "", "node description")
	command.Flags().StringVarP(&category, "category", "c", "project", "node category")
	command.Flags().StringVarP(&parentGuid, "parent", "p", "", "parent node guid")

	command.Flags().SortFlags = false

	return command
}

func getNodeCmd() *cobra.Command {
	var guid string

	var required = []string{"guid"}

	command := &cobra.Command{
		Use:     "get",
		Short:   "get a node by guid",
		Example: "osf node get -g <guid>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Guid", "Title", "Type", "Category", "Public", "Fork"})
			table.Append([]string{
				guid,
				node.Title,
				node.Type,
				node.CategoryDisplay(),
				strconv.FormatBool(node.IsPublic),
				strconv.FormatBool(node.IsFork),
			})
			table.Render()
		},
	}

	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")

	return command
}

func childrenCmd() *cobra.Command {
	var guid string
	var all bool

	var required = []string{"guid"}

	command := &cobra.Command{
		Use:     "children",
		Short:   "list a node's primary descendants",
		Example: "osf node children -g <guid>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			children, err := svc.GetChildren(ctx, node, !all)
			if fatalIf(err) {
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Title", "Type", "Public", "Deleted"})
			for _, child := range children {
				table.Append([]string{
					child.Title,
					child.Type,
					strconv.FormatBool(child.IsPublic),
					strconv.FormatBool(child.IsDeleted),
				})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")
	command.Flags().BoolVarP(&all, "all", "a", false, "include deleted nodes")

	return command
}

func logsCmd() *cobra.Command {
	var guid string
	var limit int

	var required = []string{"guid"}

	command := &cobra.Command{
		Use:     "logs",
		Short:   "list a node's audit log",
		Example: "osf node logs -g <guid> -n 20",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			logs, err := svc.Logs(ctx, node, 0, limit)
			if fatalIf(err) {
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Action", "Date", "User"})
			for _, log := range logs {
				user := ""
				if log.UserID != nil {
					user = *log.UserID
				}
				table.Append([]string{log.Action, log.Date.Format("2006-01-02 15:04:05"), user})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")
	command.Flags().IntVarP(&limit, "limit", "n", 50, "max log entries")

	return command
}

func privacyCmd() *cobra.Command {
	var userID string
	var guid string
	var privacy string

	var required = []string{"user-id", "guid", "privacy"}

	command := &cobra.Command{
		Use:     "privacy",
		Short:   "set a node's privacy",
		Example: "osf node privacy -u <user-id> -g <guid> -p public",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}
			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			if err := svc.SetPrivacy(ctx, node, privacy, a); fatalIf(err) {
				return
			}
			color.Green("node %s is now %s", guid, privacy)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")
	command.Flags().StringVarP(&privacy, "privacy", "p", "", "public or private (required)")

	return command
}

func forkNodeCmd() *cobra.Command {
	var userID string
	var guid string

	var required = []string{"user-id", "guid"}

	command := &cobra.Command{
		Use:     "fork",
		Short:   "fork a node tree",
		Example: "osf node fork -u <user-id> -g <guid>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}
			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			fork, messages, err := svc.ForkNode(ctx, node, a)
			if fatalIf(err) {
				return
			}
			for _, message := range messages {
				color.Yellow(message)
			}

			forkGuid, err := svc.Guid(ctx, fork.ID)
			if fatalIf(err) {
				return
			}
			logrus.Infof("fork created with guid: %s", forkGuid)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")

	return command
}

func registerNodeCmd() *cobra.Command {
	var userID string
	var guid string
	var schema string
	var dataFile string

	var required = []string{"user-id", "guid", "schema"}

	command := &cobra.Command{
		Use:     "register",
		Short:   "register a node tree",
		Example: "osf node register -u <user-id> -g <guid> -s <schema> -f meta.json",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}
			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			data := []byte("{}")
			if dataFile != "" {
				data, err = os.ReadFile(dataFile)
				if fatalIf(err) {
					return
				}
			}

			registration, messages, err := svc.RegisterNode(ctx, node, schema, data, a, nil)
			if fatalIf(err) {
				return
			}
			for _, message := range messages {
				color.Yellow(message)
			}

			regGuid, err := svc.Guid(ctx, registration.ID)
			if fatalIf(err) {
				return
			}
			logrus.Infof("registration created with guid: %s", regGuid)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")
	command.Flags().StringVarP(&schema, "schema", "s", "", "registration schema id (required)")
	command.Flags().StringVarP(&dataFile, "data", "f", "", "registration metadata json file")

	return command
}

func templateNodeCmd() *cobra.Command {
	var userID string
	var guid string

	var required = []string{"user-id", "guid"}

	command := &cobra.Command{
		Use:     "template",
		Short:   "copy a node tree's structure",
		Example: "osf node template -u <user-id> -g <guid>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}
			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			templated, messages, err := svc.UseAsTemplate(ctx, node, a, nil)
			if fatalIf(err) {
				return
			}
			for _, message := range messages {
				color.Yellow(message)
			}

			newGuid, err := svc.Guid(ctx, templated.ID)
			if fatalIf(err) {
				return
			}
			logrus.Infof("copy created with guid: %s", newGuid)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")

	return command
}

func removeNodeCmd() *cobra.Command {
	var userID string
	var guid string

	var required = []string{"user-id", "guid"}

	command := &cobra.Command{
		Use:     "remove",
		Short:   "soft-delete a node",
		Example: "osf node remove -u <user-id> -g <guid>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}
			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			if err := svc.RemoveNode(ctx, node, a); fatalIf(err) {
				return
			}
			color.Magenta("node %s removed", guid)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")

	return command
}

func addContributorCmd() *cobra.Command {
	var userID string
	var guid string
	var contributorID string
	var permission string

	var required = []string{"user-id", "guid", "contributor-id"}

	command := &cobra.Command{
		Use:     "add",
		Short:   "add a contributor",
		Example: "osf contributor add -u <user-id> -g <guid> -c <contributor-id> -p admin",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}
			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}
			user, err := svc.User(ctx, contributorID)
			if fatalIf(err) {
				return
			}

			if _, err := svc.AddContributor(ctx, node, user, permission, true, a); fatalIf(err) {
				return
			}
			color.Green("contributor added to %s", guid)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")
	command.Flags().StringVarP(&contributorID, "contributor-id", "c", "", "user to add (required)")
	command.Flags().StringVarP(&permission, "permission", "p", "", "read, write or admin")

	return command
}

func removeContributorCmd() *cobra.Command {
	var userID string
	var guid string
	var contributorID string

	var required = []string{"user-id", "guid", "contributor-id"}

	command := &cobra.Command{
		Use:     "remove",
		Short:   "remove a contributor",
		Example: "osf contributor remove -u <user-id> -g <guid> -c <contributor-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			a, err := actingUser(svc, userID)
			if fatalIf(err) {
				return
			}
			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			if err := svc.RemoveContributor(ctx, node, contributorID, a); fatalIf(err) {
				return
			}
			color.Magenta("contributor removed from %s", guid)
		},
	}

	command.Flags().StringVarP(&userID, "user-id", "u", "", "acting user id (required)")
	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")
	command.Flags().StringVarP(&contributorID, "contributor-id", "c", "", "user to remove (required)")

	return command
}

func listContributorsCmd() *cobra.Command {
	var guid string

	var required = []string{"guid"}

	command := &cobra.Command{
		Use:     "list",
		Short:   "list a node's contributors",
		Example: "osf contributor list -g <guid>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())
			ctx := context.Background()

			node, err := svc.Resolve(ctx, guid)
			if fatalIf(err) {
				return
			}

			contribs, err := svc.Contributors(ctx, node)
			if fatalIf(err) {
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"User", "Read", "Write", "Admin", "Visible"})
			for _, contrib := range contribs {
				table.Append([]string{
					contrib.UserID,
					strconv.FormatBool(contrib.Read),
					strconv.FormatBool(contrib.Write),
					strconv.FormatBool(contrib.Admin),
					strconv.FormatBool(contrib.Visible),
				})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&guid, "guid", "g", "", "node guid (required)")

	return command
}

func createUserCmd() *cobra.Command {
	var username string
	var fullname string

	var required = []string{"username"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a user",
		Example: "osf user create -n <username> -f <fullname>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			svc, _ := newService(config.LoadConfig())

			user := &model.User{Username: username, Fullname: fullname, IsActive: true}
			if err := svc.CreateUser(context.Background(), user); fatalIf(err) {
				return
			}
			logrus.Infof("user created with id: %s", user.ID)
		},
	}

	command.Flags().StringVarP(&username, "username", "n", "", "username (required)")
	command.Flags().StringVarP(&fullname, "fullname", "f", "", "full name")

	return command
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tensorplex-labs/kami-client/pkg/chainutils"
	"github.com/tensorplex-labs/kami-client/pkg/config"
	"github.com/tensorplex-labs/kami-client/pkg/kami"
)

type ScoreConfig struct {
	Scores  []float64 `json:"scores"`
	Step    int       `json:"step"`
	Hotkeys []string  `json:"hotkeys"`
}

type model struct {
	choices       []string
	cursor        int
	selectedIndex int // single selection index; -1 until chosen
	kamiClient    *kami.Kami
	chainConfig   *config.ChainEnvConfig
}

func initialModel() *model {
	ctx := context.Background()

	chainCfg, err := config.Load[config.ChainEnvConfig](ctx)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	k, err := kami.NewKamiFromEnv(ctx)
	if err != nil {
		fmt.Printf("Error initializing Kami: %v\n", err)
		os.Exit(1)
	}

	return &model{
		choices: []string{
			"Show latest block",
			"Show metagraph summary",
			"Check hotkey registration",
			"Announce axon",
			"Set 100% burn weight",
			"Set scores weight",
		},
		cursor:        0,
		selectedIndex: -1,
		chainConfig:   chainCfg,
		kamiClient:    k,
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) { //nolint
	switch msg := msg.(type) { //nolint
	case tea.KeyMsg:
		switch msg.String() {
		// These keys should exit the program.
		case "ctrl+c", "q":
			return m, tea.Quit

		// The "up" and "k" keys move the cursor up
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		// The "down" and "j" keys move the cursor down
		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}

		// The "enter" key confirms the current cursor selection.
		case "enter":
			m.selectedIndex = m.cursor
			ctx := context.Background()
			switch m.selectedIndex {
			case 0:
				m.showLatestBlock(ctx)
			case 1:
				m.showMetagraphSummary(ctx)
			case 2:
				m.checkHotkeyRegistration(ctx)
			case 3:
				m.announceAxon(ctx)
			case 4:
				m.setBurnWeight(ctx)
			case 5:
				m.setScoresWeight(ctx)
			default:
				fmt.Println("Unknown selection")
			}

			return m, tea.Quit
		}
	}

	// Return the updated model to the Bubble Tea runtime for processing.
	// Note that we're not returning a command.
	return m, nil
}

func (m *model) showLatestBlock(ctx context.Context) {
	block, err := m.kamiClient.GetLatestBlock(ctx)
	if err != nil {
		fmt.Printf("Error fetching latest block: %v\n", err)
		return
	}
	fmt.Printf("Latest block: %d\n", block.BlockNumber)
	fmt.Printf("Parent hash:  %s\n", block.ParentHash)
	fmt.Printf("State root:   %s\n", block.StateRoot)
}

func (m *model) showMetagraphSummary(ctx context.Context) {
	metagraph, err := m.kamiClient.GetMetagraph(ctx, m.chainConfig.Netuid)
	if err != nil {
		fmt.Printf("Error fetching metagraph: %v\n", err)
		return
	}

	validators := 0
	for _, permitted := range metagraph.ValidatorPermit {
		if permitted {
			validators++
		}
	}
	served := 0
	for _, axon := range metagraph.Axons {
		if axon.IP != "" && axon.Port != 0 {
			served++
		}
	}

	fmt.Printf("Netuid:       %d\n", metagraph.Netuid)
	fmt.Printf("Neurons:      %d\n", metagraph.NumUids)
	fmt.Printf("Validators:   %d\n", validators)
	fmt.Printf("Served axons: %d\n", served)
	fmt.Printf("Tempo:        %d\n", metagraph.Tempo)
}

func (m *model) checkHotkeyRegistration(ctx context.Context) {
	hotkey, err := chainutils.GetHotkey(ctx, m.kamiClient)
	if err != nil {
		fmt.Printf("Error fetching keyring pair: %v\n", err)
		return
	}

	registered, err := m.kamiClient.IsHotkeyRegistered(ctx, m.chainConfig.Netuid, hotkey, nil)
	if err != nil {
		fmt.Printf("Error checking registration: %v\n", err)
		return
	}

	if registered {
		fmt.Printf("Hotkey %s is registered on netuid %d\n", hotkey, m.chainConfig.Netuid)
	} else {
		fmt.Printf("Hotkey %s is NOT registered on netuid %d\n", hotkey, m.chainConfig.Netuid)
	}
}

func (m *model) announceAxon(ctx context.Context) {
	externalIP, err := chainutils.GetExternalIPInt(ctx)
	if err != nil {
		fmt.Printf("Error resolving external IP: %v\n", err)
		return
	}

	fmt.Printf("Announcing axon %s:%d on netuid %d\n",
		chainutils.IntToIPv4(externalIP), m.chainConfig.AxonPort, m.chainConfig.Netuid)

	res, err := m.kamiClient.ServeAxon(ctx, kami.ServeAxonParams{
		Version:  1,
		IP:       int(externalIP),
		Port:     m.chainConfig.AxonPort,
		IPType:   4,
		Netuid:   m.chainConfig.Netuid,
		Protocol: 4,
	})
	if err != nil {
		fmt.Printf("Error serving axon: %v\n", err)
		return
	}

	fmt.Printf("Successfully served axon with hash: %s\n", res.Data)
}

func (m *model) setBurnWeight(ctx context.Context) {
	fmt.Println("Setting 100% burn weight to uid 0")
	payload := kami.SetWeightsParams{
		Netuid:     m.chainConfig.Netuid,
		Dests:      []int{0},
		Weights:    []int{chainutils.U16MAX},
		VersionKey: 1,
	}

	res, err := m.kamiClient.SetWeights(ctx, payload)
	if err != nil {
		fmt.Printf("Error setting weights: %v\n", err)
		return
	}

	fmt.Printf("Successfully set weights with hash: %s\n", res.Data)

	fmt.Println("Successfully set burn weights!")
}

func (m *model) setScoresWeight(ctx context.Context) {
	fmt.Println("Setting scores weight")
	latestScoresData, err := os.ReadFile("scores.json")
	if err != nil {
		fmt.Printf("failed to read scores file: %v\n", err)
		return
	}

	var scores ScoreConfig
	if err = sonic.Unmarshal(latestScoresData, &scores); err != nil {
		fmt.Printf("failed to unmarshal scores file data: %v\n", err)
		return
	}

	uids := make([]int, len(scores.Scores))
	for i := range uids {
		uids[i] = i
	}

	weights := chainutils.ClampNegativeWeights(scores.Scores)

	convertedUids, convertedWeights, err := chainutils.ConvertWeightsAndUidsForEmit(uids, weights)
	if err != nil {
		fmt.Printf("Error converting weights and uids: %v\n", err)
		return
	}

	payload := kami.SetWeightsParams{
		Netuid:     m.chainConfig.Netuid,
		Dests:      convertedUids,
		Weights:    convertedWeights,
		VersionKey: 1,
	}

	res, err := m.kamiClient.SetWeights(ctx, payload)
	if err != nil {
		fmt.Printf("Error setting weights: %v\n", err)
		return
	}

	fmt.Printf("Successfully set weights with hash: %s\n", res.Data)
}

func (m *model) View() string {
	// The header
	s := "Select an option:\n\n"

	// Iterate over our choices
	for i, choice := range m.choices {
		// Is the cursor pointing at this choice?
		cursor := " " // no cursor
		if m.cursor == i {
			cursor = ">" // cursor!
		}

		// Render the row
		s += fmt.Sprintf("%s %s\n", cursor, choice)
	}

	// The footer
	s += "\nPress q to quit.\n"

	// Send the UI for rendering
	return s
}

func (m *model) Init() tea.Cmd {
	// Just return `nil`, which means "no I/O right now, please."
	return nil
}

func main() {
	m := initialModel()
	defer m.kamiClient.Close()

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
